package opml

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nested = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Loose" type="rss" xmlUrl="https://loose.example/rss"/>
    <outline text="Tech">
      <outline text="Go Blog" title="The Go Blog" type="rss" xmlUrl="https://go.dev/blog/feed.atom"/>
      <outline text="Deeper">
        <outline text="Nested" type="rss" xmlUrl=" https://nested.example/rss "/>
      </outline>
    </outline>
    <outline text="Dupe" type="rss" xmlUrl="https://loose.example/rss"/>
    <outline text="Empty folder"/>
  </body>
</opml>`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(nested))
	require.NoError(t, err)
	assert.Equal(t, []FeedEntry{
		{Title: "Loose", URL: "https://loose.example/rss"},
		{Title: "The Go Blog", URL: "https://go.dev/blog/feed.atom"},
		{Title: "Nested", URL: "https://nested.example/rss"},
	}, entries)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader("<opml><body>"))
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	feeds := []FeedEntry{
		{Title: "A & B", URL: "https://a.example/rss?x=1&y=2"},
		{Title: "C", URL: "https://c.example/rss"},
	}
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	out, err := Export("readless", feeds, created)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("<?xml")))
	assert.Contains(t, string(out), `<title>readless</title>`)
	assert.Contains(t, string(out), created.Format(time.RFC1123Z))

	parsed, err := Parse(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, feeds, parsed)
}
