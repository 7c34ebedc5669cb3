package resource

import (
	"strings"
	"unicode/utf8"

	"github.com/bruce-go/scripthost/internal/display"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/width"
)

// Glyph cell of the built-in font at text size 1.
const (
	glyphW = 6
	glyphH = 8
)

// ViewerOptions places the viewer on screen. Zero sizes fill the screen
// minus a 10px margin.
type ViewerOptions struct {
	FontSize    int
	StartX      int
	StartY      int
	Width       int
	Height      int
	IndentWraps bool
}

// TextViewer is a scrollable, word-wrapped block of text.
type TextViewer struct {
	target  display.Canvas
	opts    ViewerOptions
	lines   []string
	first   int
	visible int
	cols    int
}

func NewTextViewer(target display.Canvas, text string, opts ViewerOptions) *TextViewer {
	if opts.FontSize <= 0 {
		opts.FontSize = 1
	}
	if opts.StartX == 0 && opts.StartY == 0 {
		opts.StartX, opts.StartY = 10, 10
	}
	if opts.Width <= 0 {
		opts.Width = target.Width() - 10
	}
	if opts.Height <= 0 {
		opts.Height = target.Height() - 10
	}
	v := &TextViewer{target: target, opts: opts}
	v.cols = max(opts.Width/(glyphW*opts.FontSize), 1)
	v.visible = max(opts.Height/(glyphH*opts.FontSize), 1)
	v.SetText(text)
	return v
}

// DecodeText returns data as UTF-8. Input that is not valid UTF-8 is taken to
// be Big5.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := traditionalchinese.Big5.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}

func (v *TextViewer) Kind() string { return KindTextViewer }

// SetText replaces the content and scrolls back to the top.
func (v *TextViewer) SetText(text string) {
	v.lines = v.lines[:0]
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n") {
		v.lines = append(v.lines, wrap(para, v.cols, v.opts.IndentWraps)...)
	}
	v.first = 0
}

// Clear drops all content.
func (v *TextViewer) Clear() {
	v.lines = v.lines[:0]
	v.first = 0
}

func (v *TextViewer) ScrollUp() {
	if v.first > 0 {
		v.first--
	}
}

func (v *TextViewer) ScrollDown() {
	if v.first < v.maxFirst() {
		v.first++
	}
}

// ScrollToLine makes line n the first visible line, clamped to the content.
func (v *TextViewer) ScrollToLine(n int) {
	v.first = min(max(n, 0), v.maxFirst())
}

func (v *TextViewer) maxFirst() int {
	return max(len(v.lines)-v.visible, 0)
}

// Line returns wrapped line n, or "" when out of range.
func (v *TextViewer) Line(n int) string {
	if n < 0 || n >= len(v.lines) {
		return ""
	}
	return v.lines[n]
}

// Lines returns the number of wrapped lines.
func (v *TextViewer) Lines() int { return len(v.lines) }

// MaxVisible returns how many lines fit in the viewer.
func (v *TextViewer) MaxVisible() int { return v.visible }

// FirstVisible returns the index of the top line.
func (v *TextViewer) FirstVisible() int { return v.first }

// VisibleText joins the lines currently on screen.
func (v *TextViewer) VisibleText() string {
	end := min(v.first+v.visible, len(v.lines))
	return strings.Join(v.lines[v.first:end], "\n")
}

// Draw clears the viewer area and renders the visible lines.
func (v *TextViewer) Draw() {
	if v.target == nil {
		return
	}
	o := v.opts
	v.target.FillRect(o.StartX, o.StartY, o.Width, o.Height, 0)
	v.target.SetTextSize(o.FontSize)
	lineH := glyphH * o.FontSize
	end := min(v.first+v.visible, len(v.lines))
	for i := v.first; i < end; i++ {
		v.target.DrawString(v.lines[i], o.StartX, o.StartY+(i-v.first)*lineH)
	}
}

func (v *TextViewer) Close() error {
	v.lines = nil
	v.target = nil
	return nil
}

// RuneCells returns the number of character cells r occupies: two for East
// Asian wide and fullwidth runes, one otherwise.
func RuneCells(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// Cells returns the number of character cells s occupies.
func Cells(s string) int {
	n := 0
	for _, r := range s {
		n += RuneCells(r)
	}
	return n
}

// wrap breaks s into lines of at most cols cells, preferring spaces as break
// points.
func wrap(s string, cols int, indent bool) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	prefix := ""
	for s != "" {
		limit := cols - len(prefix)
		if limit < 1 {
			limit = 1
		}
		used, cut, lastSpace := 0, len(s), -1
		for i, r := range s {
			w := RuneCells(r)
			if used+w > limit {
				cut = i
				break
			}
			if r == ' ' {
				lastSpace = i
			}
			used += w
		}
		if cut < len(s) && s[cut] != ' ' && lastSpace > 0 {
			cut = lastSpace
		}
		if cut == 0 {
			_, size := utf8.DecodeRuneInString(s)
			cut = size
		}
		out = append(out, prefix+strings.TrimRight(s[:cut], " "))
		s = strings.TrimLeft(s[cut:], " ")
		if indent {
			prefix = "  "
		}
	}
	return out
}
