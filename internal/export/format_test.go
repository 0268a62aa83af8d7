package export

import (
	"strings"
	"testing"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/docs/v1"
)

var testTime = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func inserted(reqs []*docs.Request) string {
	var b strings.Builder
	for _, r := range reqs {
		if r.InsertText != nil {
			b.WriteString(r.InsertText.Text)
		}
	}
	return b.String()
}

func styles(reqs []*docs.Request) []*docs.UpdateTextStyleRequest {
	var out []*docs.UpdateTextStyleRequest
	for _, r := range reqs {
		if r.UpdateTextStyle != nil {
			out = append(out, r.UpdateTextStyle)
		}
	}
	return out
}

func TestBuildRequests_OffsetsAreContiguous(t *testing.T) {
	p := &models.ResultPayload{
		Query:     "NVDA outlook",
		Timestamp: testTime,
		Model:     "sonar-pro",
		Content:   "# Título\n\n## Section\n- **Rev** up 😀\n1. First\n---\nPlain **bold** and __under__ *x*",
		Filters:   models.ResultFilters{DateRange: "since 2026-01-01", Websites: "site:ft.com"},
	}

	reqs := BuildRequests(p, time.UTC)
	require.NotEmpty(t, reqs)

	next := int64(1)
	for _, r := range reqs {
		if r.InsertText == nil {
			continue
		}
		assert.Equal(t, next, r.InsertText.Location.Index, "insert %q", r.InsertText.Text)
		next += textLen(r.InsertText.Text)
	}

	text := inserted(reqs)
	assert.True(t, strings.HasPrefix(text, "NVDA outlook\n\nExecuted: 2026-10-15 at 09:00:00\nModel: sonar-pro\n"))
	assert.Contains(t, text, "Date Range: since 2026-01-01\n")
	assert.Contains(t, text, "Website Filters: site:ft.com\n")
	assert.Contains(t, text, "\n--- RESULTS ---\n\n")
	assert.Contains(t, text, "Título\n\nSection\n    Rev up 😀\n1. First\nPlain bold and under x\n")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "---\nPlain")
}

func TestBuildRequests_Styles(t *testing.T) {
	p := &models.ResultPayload{
		Query:     "Q",
		Timestamp: testTime,
		Content:   "## Head\n- **Bold** tail\n---\n1. one\n😀 x",
	}

	reqs := BuildRequests(p, time.UTC)
	text := inserted(reqs)
	assert.Contains(t, text, "Model: N/A\n")

	st := styles(reqs)
	require.Len(t, st, 4)

	// Title.
	assert.Equal(t, int64(1), st[0].Range.StartIndex)
	assert.Equal(t, int64(2), st[0].Range.EndIndex)
	assert.Equal(t, float64(titleSize), st[0].TextStyle.FontSize.Magnitude)

	// "Q\n\n" (3) + metadata (44) puts the separator block at 48; the label
	// skips its leading newline.
	assert.Equal(t, int64(49), st[1].Range.StartIndex)
	assert.Equal(t, int64(64), st[1].Range.EndIndex)
	assert.Equal(t, "bold,fontSize", st[1].Fields)

	// Heading after the 18-char separator block.
	assert.Equal(t, int64(66), st[2].Range.StartIndex)
	assert.Equal(t, int64(70), st[2].Range.EndIndex)
	assert.Equal(t, float64(h2Size), st[2].TextStyle.FontSize.Magnitude)

	// Inline bold after the bullet padding.
	assert.Equal(t, int64(75), st[3].Range.StartIndex)
	assert.Equal(t, int64(79), st[3].Range.EndIndex)
	assert.Equal(t, "bold", st[3].Fields)
	assert.Nil(t, st[3].TextStyle.FontSize)

	last := reqs[len(reqs)-1].InsertText
	require.NotNil(t, last)
	assert.Equal(t, "😀 x\n", last.Text)
	assert.Equal(t, int64(92), last.Location.Index)
}

func TestTextLen_CountsUTF16(t *testing.T) {
	assert.Equal(t, int64(3), textLen("abc"))
	assert.Equal(t, int64(1), textLen("é"))
	assert.Equal(t, int64(2), textLen("😀"))
}
