package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/hugh/go-scout/internal/database/models"
	"google.golang.org/api/docs/v1"
)

// Font sizes in points.
const (
	titleSize = 16
	h1Size    = 16
	h2Size    = 14
	h3Size    = 12
)

const (
	separator = "--- RESULTS ---"
	bulletPad = "    "
)

var (
	inlineBoldRe = regexp.MustCompile(`\*\*[^*]+\*\*|__[^_]+__`)
	strayStarsRe = regexp.MustCompile(`\*+`)
	numberedRe   = regexp.MustCompile(`^\d+\.\s`)
)

// docBuilder appends insert/style requests while tracking the insertion
// index. Docs indexes are UTF-16 code units and the body starts at 1.
type docBuilder struct {
	reqs  []*docs.Request
	index int64
}

func newDocBuilder() *docBuilder {
	return &docBuilder{index: 1}
}

func textLen(s string) int64 {
	return int64(len(utf16.Encode([]rune(s))))
}

// insert adds text at the current index and returns where it started.
func (b *docBuilder) insert(text string) int64 {
	start := b.index
	if text == "" {
		return start
	}
	b.reqs = append(b.reqs, &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: start},
			Text:     text,
		},
	})
	b.index += textLen(text)
	return start
}

func (b *docBuilder) bold(start, end int64, size float64) {
	if end <= start {
		return
	}
	style := &docs.TextStyle{Bold: true}
	fields := "bold"
	if size > 0 {
		style.FontSize = &docs.Dimension{Magnitude: size, Unit: "PT"}
		fields = "bold,fontSize"
	}
	b.reqs = append(b.reqs, &docs.Request{
		UpdateTextStyle: &docs.UpdateTextStyleRequest{
			Range:     &docs.Range{StartIndex: start, EndIndex: end},
			TextStyle: style,
			Fields:    fields,
		},
	})
}

// heading inserts text on its own line, styled up to but not including the newline.
func (b *docBuilder) heading(text string, size float64) {
	start := b.insert(text + "\n")
	b.bold(start, start+textLen(text), size)
}

// inline inserts text, rendering **x** and __x__ as bold and dropping any
// leftover asterisks.
func (b *docBuilder) inline(text string) {
	last := 0
	for _, m := range inlineBoldRe.FindAllStringIndex(text, -1) {
		b.insert(strayStarsRe.ReplaceAllString(text[last:m[0]], ""))
		inner := text[m[0]+2 : m[1]-2]
		start := b.insert(inner)
		b.bold(start, b.index, 0)
		last = m[1]
	}
	b.insert(strayStarsRe.ReplaceAllString(text[last:], ""))
}

func hasInlineBold(s string) bool {
	return strings.Contains(s, "**") || strings.Contains(s, "__")
}

// BuildRequests renders a result as a titled report: query title, run
// metadata, filters, then the answer with its markdown converted to styles.
func BuildRequests(p *models.ResultPayload, loc *time.Location) []*docs.Request {
	if loc == nil {
		loc = time.Local
	}
	b := newDocBuilder()

	start := b.insert(p.Query + "\n\n")
	b.bold(start, start+textLen(p.Query), titleSize)

	ts := p.Timestamp.In(loc)
	model := p.Model
	if model == "" {
		model = "N/A"
	}
	b.insert(fmt.Sprintf("Executed: %s at %s\nModel: %s\n", ts.Format("2006-01-02"), ts.Format("15:04:05"), model))
	if p.Filters.DateRange != "" {
		b.insert("Date Range: " + p.Filters.DateRange + "\n")
	}
	if p.Filters.Websites != "" {
		b.insert("Website Filters: " + p.Filters.Websites + "\n")
	}

	start = b.insert("\n" + separator + "\n\n")
	b.bold(start+1, start+1+textLen(separator), h2Size)

	writeContent(b, p.Content)
	return b.reqs
}

func writeContent(b *docBuilder, content string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			b.insert("\n")
		case strings.HasPrefix(line, "### "):
			b.heading(strings.TrimSpace(line[4:]), h3Size)
		case strings.HasPrefix(line, "## "):
			b.heading(strings.TrimSpace(line[3:]), h2Size)
		case strings.HasPrefix(line, "# "):
			b.heading(strings.TrimSpace(line[2:]), h1Size)
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "• "):
			text := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "- "), "• "))
			writeLine(b, bulletPad+text+"\n")
		case numberedRe.MatchString(line):
			b.insert(line + "\n")
		case strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|"):
			// Tables are kept as plain text.
			b.insert(line + "\n")
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "==="):
			continue
		default:
			writeLine(b, line+"\n")
		}
	}
}

func writeLine(b *docBuilder, text string) {
	if hasInlineBold(text) {
		b.inline(text)
		return
	}
	b.insert(text)
}
