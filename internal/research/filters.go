package research

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/hugh/go-scout/internal/database/models"
	"github.com/hugh/go-scout/internal/perplexity"
)

// Recency buckets accepted by the generation API.
const (
	RecencyDay   = "day"
	RecencyWeek  = "week"
	RecencyMonth = "month"
	RecencyYear  = "year"
)

const dateLayout = "2006-01-02"

var siteFilterRe = regexp.MustCompile(`site:([^\s]+)`)

// BuildSearchQuery appends the date-range clause and raw website filters to
// the query text.
func BuildSearchQuery(q *models.ScheduledQuery) string {
	var b strings.Builder
	b.WriteString(q.QueryText)

	if clause := FormatDateRange(deref(q.DateRangeStart), deref(q.DateRangeEnd)); clause != "" {
		b.WriteString(" ")
		b.WriteString(clause)
	}
	if filters := deref(q.WebsiteFilters); filters != "" {
		b.WriteString(" ")
		b.WriteString(filters)
	}
	return b.String()
}

func FormatDateRange(start, end string) string {
	switch {
	case start != "" && end != "":
		return fmt.Sprintf("from %s to %s", start, end)
	case start != "":
		return "since " + start
	case end != "":
		return "until " + end
	default:
		return ""
	}
}

// SearchDomains extracts the token after every "site:" in filters.
func SearchDomains(filters string) []string {
	domains := []string{}
	for _, m := range siteFilterRe.FindAllStringSubmatch(filters, -1) {
		domains = append(domains, m[1])
	}
	return domains
}

// RecencyFilter buckets the span between start and end (now when missing) by
// whole days, rounding up. Unset dates give a month; an unparseable bound has
// no span to measure and gives a year.
func RecencyFilter(start, end string, now time.Time) string {
	if start == "" && end == "" {
		return RecencyMonth
	}

	from, to := now, now
	if start != "" {
		t, err := parseDate(start)
		if err != nil {
			return RecencyYear
		}
		from = t
	}
	if end != "" {
		t, err := parseDate(end)
		if err != nil {
			return RecencyYear
		}
		to = t
	}

	days := math.Ceil(to.Sub(from).Hours() / 24)
	switch {
	case days <= 1:
		return RecencyDay
	case days <= 7:
		return RecencyWeek
	case days <= 30:
		return RecencyMonth
	default:
		return RecencyYear
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// BuildMessages assembles the conversation. With a prior exchange the
// parent's question and answer are replayed before the new question.
func BuildMessages(searchQuery string, prior *PriorExchange) []perplexity.Message {
	messages := []perplexity.Message{
		{Role: perplexity.RoleSystem, Content: systemPrompt},
	}

	if prior == nil {
		return append(messages, perplexity.Message{
			Role:    perplexity.RoleUser,
			Content: fmt.Sprintf(standalonePrompt, searchQuery),
		})
	}

	return append(messages,
		perplexity.Message{Role: perplexity.RoleUser, Content: fmt.Sprintf(priorQuestionPrompt, prior.Question)},
		perplexity.Message{Role: perplexity.RoleAssistant, Content: prior.Answer},
		perplexity.Message{Role: perplexity.RoleUser, Content: fmt.Sprintf(followupPrompt, searchQuery)},
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
