// Package digest builds read-only reports of the entries published in a
// date range, grouped by category.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/readless/internal/model"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

const dateLayout = "2006-01-02"

// Group is one category section of a digest.
type Group struct {
	Category string              `json:"category"`
	Entries  []model.DigestEntry `json:"entries"`
}

// Digest holds the entries of [Start, End] grouped by category.
type Digest struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Groups []Group   `json:"groups"`
}

// Build groups entries by category. Categories appear in the order of their
// first entry and entries keep their input order.
func Build(entries []model.DigestEntry, start, end time.Time) Digest {
	d := Digest{Start: start, End: end, Groups: []Group{}}

	grouped := lo.GroupBy(entries, func(e model.DigestEntry) string { return category(e) })
	order := lo.Uniq(lo.Map(entries, func(e model.DigestEntry, _ int) string { return category(e) }))
	for _, name := range order {
		d.Groups = append(d.Groups, Group{Category: name, Entries: grouped[name]})
	}
	return d
}

func category(e model.DigestEntry) string {
	if e.Category == "" {
		return model.DefaultCategory
	}
	return e.Category
}

// Count returns the number of entries in the digest.
func (d Digest) Count() int {
	return lo.SumBy(d.Groups, func(g Group) int { return len(g.Entries) })
}

// RenderMarkdown renders the digest with one section per category and one
// linked heading per entry followed by its description as plain text.
func RenderMarkdown(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# RSS Digest from %s to %s\n\n", d.Start.Format(dateLayout), d.End.Format(dateLayout))
	for _, g := range d.Groups {
		fmt.Fprintf(&b, "## %s\n\n", g.Category)
		for _, e := range g.Entries {
			fmt.Fprintf(&b, "### [%s](%s)\n", e.Title, e.Link)
			if text := PlainText(e.Description); text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderJSON renders the digest as indented JSON.
func RenderJSON(d Digest) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// PlainText strips HTML markup from s.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

// Range resolves a named preset to a date range ending today. The range
// starts at midnight of the first day and ends at the last second of today,
// both in now's location.
func Range(preset string, now time.Time) (time.Time, time.Time, error) {
	var days int
	switch strings.ToLower(preset) {
	case "day":
		days = 1
	case "week":
		days = 7
	case "month":
		days = 30
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown digest range %q (want day, week or month)", preset)
	}
	return LastDays(days, now)
}

// LastDays returns the range covering today and the days before it.
func LastDays(days int, now time.Time) (time.Time, time.Time, error) {
	if days < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("days must not be negative, got %d", days)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -days), EndOfDay(today), nil
}

// EndOfDay returns the last second of t's day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// ParseRange parses inclusive YYYY-MM-DD bounds in UTC. The end day is
// included up to its last second.
func ParseRange(startText, endText string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startText)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: want YYYY-MM-DD", startText)
	}
	end, err := time.Parse(dateLayout, endText)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: want YYYY-MM-DD", endText)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", endText, startText)
	}
	return start, EndOfDay(end), nil
}
