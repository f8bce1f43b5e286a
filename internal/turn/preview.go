package turn

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

var (
	markdown    = goldmark.New()
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// makePreview renders agent output into a bounded plain-text preview:
// markdown structure is flattened (research-style output is heavy on
// headings), runs of three or more newlines collapse to two, and the result
// is hard-capped with an ellipsis.
func makePreview(raw string, limit int) string {
	text := strings.TrimSpace(plainText(raw))
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimRight(string(runes[:limit]), " \n") + "…"
}

// plainText walks the markdown AST and keeps only the text content.
func plainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	source := []byte(src)
	doc := markdown.Parser().Parse(gmtext.NewReader(source))

	var b strings.Builder
	b.Grow(len(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				b.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.FencedCodeBlock:
			writeSegments(&b, t.Lines(), source)
		case *ast.CodeBlock:
			writeSegments(&b, t.Lines(), source)
		case *ast.AutoLink:
			b.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func writeSegments(b *strings.Builder, lines *gmtext.Segments, source []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
}
