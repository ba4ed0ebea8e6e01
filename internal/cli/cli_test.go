package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryan-buckman/readless/internal/database"
	"github.com/bryan-buckman/readless/internal/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>CLI Blog</title>
  <item>
    <title>Launch day</title>
    <link>https://cli.example/launch</link>
    <description>&lt;p&gt;We shipped.&lt;/p&gt;</description>
    <pubDate>Sat, 01 Jun 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Undated</title>
    <link>https://cli.example/undated</link>
  </item>
</channel>
</rss>`

// run executes the app against the database at dbPath and returns stdout.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	argv := append([]string{"readless", "--db-driver", "sqlite", "--db", dbPath, "--log-level", "error"}, args...)
	err := App(&out).Run(argv)
	return out.String(), err
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedXML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedWorkflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	srv := feedServer(t)

	out, err := run(t, db, "feed", "add", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Added "+srv.URL)

	out, err = run(t, db, "feed", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CLI Blog")
	assert.Contains(t, out, "never")

	out, err = run(t, db, "feed", "fetch", "-v", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "1 new, 1 skipped")
	assert.Contains(t, out, "skipped https://cli.example/undated: missing date")

	out, err = run(t, db, "feed", "fetch")
	require.NoError(t, err)
	assert.Contains(t, out, "0 new, 2 skipped")

	out, err = run(t, db, "entry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Launch day")

	_, err = run(t, db, "entry", "read", "https://cli.example/launch")
	require.NoError(t, err)
	out, err = run(t, db, "entry", "list", "--unread")
	require.NoError(t, err)
	assert.NotContains(t, out, "Launch day")

	_, err = run(t, db, "feed", "rename", srv.URL, "Renamed")
	require.NoError(t, err)
	out, err = run(t, db, "feed", "toggle", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")

	out, err = run(t, db, "feed", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed")
	assert.NotContains(t, out, "never")

	out, err = run(t, db, "feed", "remove", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	out, err = run(t, db, "feed", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No feeds")
}

func TestCategoryAndDigest(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	srv := feedServer(t)

	_, err := run(t, db, "feed", "add", srv.URL)
	require.NoError(t, err)
	_, err = run(t, db, "feed", "fetch", srv.URL)
	require.NoError(t, err)

	_, err = run(t, db, "category", "add", "News")
	require.NoError(t, err)
	_, err = run(t, db, "entry", "categorize", "https://cli.example/launch", "News")
	require.NoError(t, err)

	out, err := run(t, db, "entry", "category", "https://cli.example/launch")
	require.NoError(t, err)
	assert.Equal(t, "News\n", out)

	out, err = run(t, db, "digest", "--start", "2024-06-01", "--end", "2024-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "# RSS Digest from 2024-06-01 to 2024-06-01")
	assert.Contains(t, out, "## News")
	assert.Contains(t, out, "### [Launch day](https://cli.example/launch)")
	assert.Contains(t, out, "We shipped.")

	path := filepath.Join(t.TempDir(), "digest.json")
	_, err = run(t, db, "digest", "--start", "2024-06-01", "--end", "2024-06-02", "--format", "json", "--out", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category": "News"`)

	_, err = run(t, db, "category", "rename", "News", "Press")
	require.NoError(t, err)
	_, err = run(t, db, "category", "remove", "Press")
	require.NoError(t, err)
	out, err = run(t, db, "entry", "category", "https://cli.example/launch")
	require.NoError(t, err)
	assert.Equal(t, "Uncategorized\n", out)

	_, err = run(t, db, "category", "remove", "Uncategorized")
	assert.ErrorIs(t, err, database.ErrDefaultCategory)
}

func TestImportCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cli.db")
	srv := feedServer(t)

	cats := filepath.Join(dir, "categories.txt")
	require.NoError(t, os.WriteFile(cats, []byte("Tech\n\n  Science \nTech\n"), 0o644))
	out, err := run(t, db, "category", "import", cats)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 categories, 1 failed")

	out, err = run(t, db, "category", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Science")

	feeds := filepath.Join(dir, "feeds.json")
	list := `{"feeds": [{"url": "` + srv.URL + `"}, {"title": "no url"}]}`
	require.NoError(t, os.WriteFile(feeds, []byte(list), 0o644))
	out, err = run(t, db, "feed", "import", feeds)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 feeds, 1 failed")

	exported := filepath.Join(dir, "feeds.opml")
	_, err = run(t, db, "feed", "export-opml", "--out", exported)
	require.NoError(t, err)

	other := filepath.Join(dir, "other.db")
	out, err = run(t, other, "feed", "import-opml", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 feeds, 0 failed")
}

func TestBackdateCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := run(t, db, "feed", "backdate", "3")
	assert.ErrorIs(t, err, manager.ErrNoFeeds)

	_, err = run(t, db, "feed", "backdate", "soon")
	assert.ErrorIs(t, err, manager.ErrInvalidArgument)

	srv := feedServer(t)
	_, err = run(t, db, "feed", "add", srv.URL)
	require.NoError(t, err)
	out, err := run(t, db, "feed", "backdate", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Backdated 1 feed(s)")
}

func TestArgumentAndConfigErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := run(t, db, "feed", "add")
	assert.ErrorContains(t, err, "missing URL argument")

	_, err = run(t, db, "entry", "read")
	assert.ErrorContains(t, err, "missing LINK argument")

	_, err = run(t, db, "digest", "--start", "2024-06-01")
	assert.ErrorContains(t, err, "--start and --end")

	_, err = run(t, db, "digest", "--format", "pdf")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, db, "feed", "fetch", "https://unknown.example/rss")
	assert.ErrorIs(t, err, manager.ErrUnknownFeed)

	var out bytes.Buffer
	err = App(&out).Run([]string{"readless", "--db-driver", "mysql", "feed", "list"})
	assert.ErrorContains(t, err, "unknown database.driver")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfg := filepath.Join(dir, "readless.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[database]\ndriver = \"sqlite\"\npath = \""+filepath.ToSlash(db)+"\"\n\n[log]\nlevel = \"error\"\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, App(&out).Run([]string{"readless", "--config", cfg, "category", "add", "Tech"}))

	_, err := os.Stat(db)
	assert.NoError(t, err)
}
