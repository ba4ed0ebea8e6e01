// Package rss provides feed fetching and parsing.
package rss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "readless/1.0 (+https://github.com/bryan-buckman/readless)"

// PublishedLayout is the only accepted publication date format (RFC 1123
// with a numeric zone).
const PublishedLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// untitled replaces an empty entry title.
const untitled = "No title"

var (
	ErrMissingDate     = errors.New("missing publication date")
	ErrUnparseableDate = errors.New("unparseable publication date")
)

// RawEntry is a feed item as received. Published is the raw text.
type RawEntry struct {
	Title       string
	Link        string
	Description string
	Content     string
	Published   string
}

// ParsedFeed is a successfully fetched and parsed feed document.
type ParsedFeed struct {
	Title   string
	Entries []RawEntry
}

// Parser fetches and parses a feed. Any error means the whole fetch failed.
type Parser interface {
	Parse(ctx context.Context, url string) (*ParsedFeed, error)
}

// GofeedParser implements Parser with gofeed.
type GofeedParser struct {
	parser *gofeed.Parser
}

// Ensure GofeedParser implements Parser interface.
var _ Parser = (*GofeedParser)(nil)

// NewGofeedParser creates a parser that identifies itself with userAgent.
// Request deadlines come from the context passed to Parse.
func NewGofeedParser(userAgent string) *GofeedParser {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &GofeedParser{parser: p}
}

// Parse fetches url and converts the document into a ParsedFeed.
func (g *GofeedParser) Parse(ctx context.Context, url string) (*ParsedFeed, error) {
	parsed, err := g.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}
	return convert(parsed), nil
}

func convert(parsed *gofeed.Feed) *ParsedFeed {
	out := &ParsedFeed{
		Title:   strings.TrimSpace(parsed.Title),
		Entries: make([]RawEntry, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		e := RawEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: item.Description,
			Content:     item.Content,
			Published:   strings.TrimSpace(item.Published),
		}
		if e.Title == "" {
			e.Title = untitled
		}
		if e.Content == "" {
			e.Content = item.Description
		}
		out.Entries = append(out.Entries, e)
	}
	return out
}

// ParsePublished parses a raw publication date with PublishedLayout and
// returns it in UTC.
func ParsePublished(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrMissingDate
	}
	t, err := time.Parse(PublishedLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, text)
	}
	return t.UTC(), nil
}
