// Package normalize turns uploaded files into the plain text the chunker splits.
package normalize

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/upb/rag-retrieval/services"
)

// Format is the detected input format
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

var pdfMagic = []byte("%PDF-")

// Detect picks the format from the content type, then the file extension,
// then the leading bytes
func Detect(contentType, fileName string, data []byte) Format {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "application/pdf":
		return FormatPDF
	case "text/markdown", "text/x-markdown":
		return FormatMarkdown
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return FormatPDF
	case ".md", ".markdown":
		return FormatMarkdown
	}

	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}
	return FormatText
}

// Normalize extracts text from data. Markdown headings come out as
// "#"-prefixed lines so structure survives into chunking.
func Normalize(contentType, fileName string, data []byte) (string, error) {
	var (
		out string
		err error
	)
	switch Detect(contentType, fileName, data) {
	case FormatPDF:
		out, err = pdfText(data)
	case FormatMarkdown:
		if !utf8.Valid(data) {
			return "", services.WrapValidation("markdown is not valid UTF-8", services.ErrUnsupportedInput)
		}
		out = markdownText(data)
	default:
		if !utf8.Valid(data) {
			return "", services.WrapValidation("text is not valid UTF-8", services.ErrUnsupportedInput)
		}
		out = string(data)
	}
	if err != nil {
		return "", err
	}
	return cleanText(out), nil
}

func cleanText(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func pdfText(data []byte) (out string, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			out, err = "", services.WrapValidation("unreadable PDF", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", services.WrapValidation("unreadable PDF", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", services.WrapValidation(fmt.Sprintf("failed to read PDF page %d", i), err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func markdownText(src []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			b.WriteString(strings.Repeat("#", node.Level))
			b.WriteString(" ")
			b.WriteString(inlineText(node, src))
			b.WriteString("\n\n")
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			b.WriteString(escapeHeaderMarks(inlineText(node, src)))
			b.WriteString("\n\n")
			return ast.WalkSkipChildren, nil
		case *ast.TextBlock:
			b.WriteString(escapeHeaderMarks(inlineText(node, src)))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			// fences are kept so the chunker does not read comments as headers
			b.WriteString(codeFence)
			if fenced, ok := node.(*ast.FencedCodeBlock); ok {
				b.Write(fenced.Language(src))
			}
			b.WriteString("\n")
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			b.WriteString(codeFence)
			b.WriteString("\n\n")
			return ast.WalkSkipChildren, nil
		case *east.TableHeader, *east.TableRow:
			var cells []string
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, inlineText(c, src))
			}
			b.WriteString(strings.Join(cells, " | "))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

const codeFence = "```"

// escapeHeaderMarks prefixes body lines starting with '#' with a backslash so
// they are not taken for markdown headings after normalisation
func escapeHeaderMarks(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			lines[i] = `\` + line
		}
	}
	return strings.Join(lines, "\n")
}

// inlineText concatenates the text leaves under n, dropping emphasis and
// link markup
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
