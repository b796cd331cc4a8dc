// Package chunker splits normalised document text into ordered passages that keep
// their structural context.
package chunker

import (
	"strings"
)

// DefaultMaxChunkSize is the default number of characters per chunk.
const DefaultMaxChunkSize = 1000

// DefaultOverlap is the default number of characters carried into the next chunk.
const DefaultOverlap = 200

const headerPathSeparator = " > "

// Extras are optional texts copied onto every produced piece
type Extras struct {
	Notes   string
	Details string
}

// Piece is one chunk produced by Split. HeaderContext holds the header(s) of the
// section the piece came from; it is never repeated inside Content.
type Piece struct {
	Index         int
	Content       string
	HeaderContext string
	Notes         string
	Details       string
}

// Chunker splits text by headers first and by sentences second.
type Chunker struct {
	maxSize int
	overlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxChunkSize sets the chunk size limit in characters.
func WithMaxChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxSize: DefaultMaxChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.maxSize {
		c.overlap = c.maxSize / 4
	}
	return c
}

// MaxChunkSize returns the configured size limit.
func (c *Chunker) MaxChunkSize() int { return c.maxSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

type section struct {
	header string
	body   string
}

// Split produces pieces with contiguous indices from zero. Empty or
// whitespace-only text yields no pieces.
func (c *Chunker) Split(text string, extras Extras) []Piece {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []Piece
	sections, structured := splitSections(text)
	if structured {
		for _, s := range sections {
			for _, content := range c.splitBody(s.body) {
				pieces = append(pieces, Piece{Content: content, HeaderContext: s.header})
			}
		}
	}

	// no usable structure: plain sentence splitting over the whole text
	if len(pieces) == 0 {
		for _, content := range c.splitBody(text) {
			pieces = append(pieces, Piece{Content: content})
		}
	}

	for i := range pieces {
		pieces[i].Index = i
		pieces[i].Notes = extras.Notes
		pieces[i].Details = extras.Details
	}
	return pieces
}

// splitSections groups lines under the most recent header. Headers with no body
// before the next header are joined into a path ("Part I > Chapter 2").
func splitSections(text string) ([]section, bool) {
	var (
		sections   []section
		body       strings.Builder
		header     string
		structured bool
		fence      string
	)

	flush := func() {
		if strings.TrimSpace(body.String()) != "" {
			sections = append(sections, section{header: header, body: body.String()})
		}
		body.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if marker := fenceMarker(line); marker != "" {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(marker, fence) && strings.TrimSpace(line) == marker:
				fence = ""
			}
			body.WriteString(line)
			continue
		}
		if fence != "" {
			body.WriteString(line)
			continue
		}
		if label, ok := headerText(line); ok {
			structured = true
			hadBody := strings.TrimSpace(body.String()) != ""
			flush()
			if !hadBody && header != "" {
				header += headerPathSeparator + label
			} else {
				header = label
			}
			continue
		}
		body.WriteString(line)
	}
	flush()

	return sections, structured
}

// fenceMarker returns the run of backticks or tildes opening a code fence
// line, or "" when line is not a fence
func fenceMarker(line string) string {
	t := strings.TrimLeft(line, " ")
	if len(line)-len(t) > 3 || len(t) < 3 || (t[0] != '`' && t[0] != '~') {
		return ""
	}
	n := 0
	for n < len(t) && t[n] == t[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	return t[:n]
}

// splitBody returns body as-is when it fits, otherwise sentence-aware pieces
// with overlap.
func (c *Chunker) splitBody(body string) []string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	if runeLen(trimmed) <= c.maxSize {
		return []string{trimmed}
	}

	var segs []string
	for _, seg := range sentenceSegments(trimmed) {
		if runeLen(strings.TrimSpace(seg)) > c.maxSize {
			segs = append(segs, hardSplit(seg, c.maxSize)...)
			continue
		}
		segs = append(segs, seg)
	}

	var (
		out     []string
		current string
	)
	for _, seg := range segs {
		if strings.TrimSpace(current) != "" && runeLen(strings.TrimSpace(current+seg)) > c.maxSize {
			prev := strings.TrimSpace(current)
			out = append(out, prev)

			current = c.overlapTail(prev)
			if current != "" {
				current += " "
			}
			if runeLen(strings.TrimSpace(current+seg)) > c.maxSize {
				current = ""
			}
		}
		current += seg
	}
	if last := strings.TrimSpace(current); last != "" {
		out = append(out, last)
	}
	return out
}

// overlapTail returns the trailing overlap window of prev, advanced to the first
// sentence start inside the window, or to a word start when the window holds
// no sentence boundary.
func (c *Chunker) overlapTail(prev string) string {
	if c.overlap == 0 {
		return ""
	}
	runes := []rune(prev)
	if len(runes) <= c.overlap {
		return ""
	}
	cut := len(string(runes[:len(runes)-c.overlap]))

	offset := 0
	for _, seg := range sentenceSegments(prev) {
		if offset >= cut && offset < len(prev) {
			return strings.TrimSpace(prev[offset:])
		}
		offset += len(seg)
	}

	tail := prev[cut:]
	if i := strings.IndexAny(tail, " \n\t"); i >= 0 && i < len(tail)-1 {
		return strings.TrimSpace(tail[i+1:])
	}
	return strings.TrimSpace(tail)
}
