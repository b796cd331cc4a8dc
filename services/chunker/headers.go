package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxHeaderRunes      = 120
	maxShortHeaderRunes = 80
	maxHeaderWords      = 12
)

var (
	markdownHeader = regexp.MustCompile(`^(#{1,6})\s+(\S.*)$`)

	// 1. / 1.2 / 2) / IV. / A) followed by title text; a bare number such as a year does not count
	numberedHeader = regexp.MustCompile(`^(\d{1,3}(\.\d{1,3})*[.)]|\d{1,3}(\.\d{1,3})+|[IVXLC]+[.)]|[A-Z][.)])\s+\S`)

	titledHeader = regexp.MustCompile(`(?i)^(chapter|section|part|appendix|capitolo|sezione|parte|allegato|articolo|art\.)\s+[\dIVXLC]+\b`)

	// dot leaders and repeated separators used by tables of contents
	tocSeparators = regexp.MustCompile(`(\.{4,}|-{4,}|_{4,}|·{3,}|…{2,}|(\.\s){4,})`)
	tocPageNumber = regexp.MustCompile(`[.\s·…]{3,}\d+\s*$`)
)

// IsHeaderLine reports whether a single line looks like a section header.
// Markdown markers always count; numbered, titled and all-caps lines count only
// when they do not end like prose and are not table-of-contents entries.
func IsHeaderLine(line string) bool {
	_, ok := headerText(line)
	return ok
}

// headerText returns the header label for line without markdown markers
func headerText(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if t == "" || utf8.RuneCountInString(t) > maxHeaderRunes {
		return "", false
	}
	if isTOCLine(t) {
		return "", false
	}

	if m := markdownHeader.FindStringSubmatch(t); m != nil {
		label := strings.TrimSpace(strings.TrimRight(m[2], "# "))
		return label, label != ""
	}

	if endsLikeProse(t) || len(strings.Fields(t)) > maxHeaderWords {
		return "", false
	}

	if numberedHeader.MatchString(t) || titledHeader.MatchString(t) {
		return t, true
	}

	if isShortAllCaps(t) {
		return t, true
	}

	return "", false
}

func isTOCLine(t string) bool {
	return tocSeparators.MatchString(t) || tocPageNumber.MatchString(t) && strings.ContainsAny(t, ".·…")
}

func endsLikeProse(t string) bool {
	last, _ := utf8.DecodeLastRuneInString(t)
	switch last {
	case '.', '!', '?', ';', ',', ':':
		return true
	}
	return false
}

func isShortAllCaps(t string) bool {
	if utf8.RuneCountInString(t) > maxShortHeaderRunes {
		return false
	}
	letters, upper := 0, 0
	for _, r := range t {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 3 && upper*10 >= letters*8
}
