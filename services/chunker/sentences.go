package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '”', '’':
		return true
	}
	return false
}

// sentenceSegments cuts s into sentences. Each segment keeps its trailing
// whitespace, so concatenating the segments yields s exactly. A sentence ends at
// a terminator (plus closing quotes/brackets) followed by whitespace, or at a
// blank line.
func sentenceSegments(s string) []string {
	var segs []string
	start, i := 0, 0

	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		end := -1

		switch {
		case isTerminator(r):
			j := i + size
			for j < len(s) {
				c, sz := utf8.DecodeRuneInString(s[j:])
				if !isCloser(c) && !isTerminator(c) {
					break
				}
				j += sz
			}
			if j == len(s) {
				end = j
			} else if c, _ := utf8.DecodeRuneInString(s[j:]); unicode.IsSpace(c) {
				end = skipSpace(s, j)
			}
		case r == '\n' && strings.HasPrefix(s[i+size:], "\n"):
			end = skipSpace(s, i)
		}

		if end > start {
			segs = append(segs, s[start:end])
			start, i = end, end
			continue
		}
		i += size
	}

	if start < len(s) {
		segs = append(segs, s[start:])
	}
	return segs
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

// hardSplit cuts s into pieces of at most max runes
func hardSplit(s string, max int) []string {
	runes := []rune(s)
	pieces := make([]string, 0, len(runes)/max+1)
	for len(runes) > max {
		pieces = append(pieces, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
