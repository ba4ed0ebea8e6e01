package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/readless/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "readless.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func testFeed(url string) model.Feed {
	return model.Feed{URL: url, Title: "Feed " + url, Enabled: true, LastUpdated: model.Epoch}
}

func testEntry(link, published string) model.Entry {
	return model.Entry{
		Link:        link,
		Title:       "Title " + link,
		Description: "<p>about " + link + "</p>",
		Content:     "content",
		Published:   published,
		PublishedAt: at(published),
	}
}

func mustAddFeed(t *testing.T, store *SQLStore, url string, entries ...model.Entry) {
	t.Helper()
	_, err := store.AddFeed(testFeed(url), entries)
	require.NoError(t, err)
}

func entryLinks(entries []model.Entry) []string {
	links := make([]string, len(entries))
	for i, e := range entries {
		links[i] = e.Link
	}
	return links
}

func TestNewSQLiteSeedsDefaultCategory(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, "SQLite", store.DatabaseType())

	categories, err := store.GetCategories()
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, model.DefaultCategory, categories[0].Name)
}

func TestNewSQLiteReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readless.db")
	store, err := NewSQLite(path)
	require.NoError(t, err)
	mustAddFeed(t, store, "https://a.example/rss")
	require.NoError(t, store.Close())

	store, err = NewSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	feeds, err := store.GetFeeds()
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
	categories, err := store.GetCategories()
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestAddFeed(t *testing.T) {
	store := newTestStore(t)

	n, err := store.AddFeed(testFeed("https://a.example/rss"), []model.Entry{
		testEntry("https://a.example/1", "2024-01-01T10:00:00Z"),
		testEntry("https://a.example/2", "2024-01-02T10:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	feed, err := store.GetFeed("https://a.example/rss")
	require.NoError(t, err)
	assert.Equal(t, "Feed https://a.example/rss", feed.Title)
	assert.True(t, feed.Enabled)
	assert.True(t, feed.LastUpdated.Equal(model.Epoch))

	entries, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.DefaultCategory, e.Category)
		assert.False(t, e.IsRead)
	}
	assert.Equal(t, []string{"https://a.example/2", "https://a.example/1"}, entryLinks(entries))
}

func TestAddFeedDuplicateURLIsAtomic(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://a.example/1", "2024-01-01T10:00:00Z"))

	_, err := store.AddFeed(testFeed("https://a.example/rss"), []model.Entry{
		testEntry("https://a.example/new", "2024-01-05T10:00:00Z"),
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	entries, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/1"}, entryLinks(entries))
}

func TestAddFeedNeverDuplicatesLinks(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://shared.example/post", "2024-01-01T10:00:00Z"))

	n, err := store.AddFeed(testFeed("https://b.example/rss"), []model.Entry{
		testEntry("https://shared.example/post", "2024-01-01T10:00:00Z"),
		testEntry("https://b.example/1", "2024-01-02T10:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	b, err := store.GetFeedEntries("https://b.example/rss")
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Equal(t, []string{"https://b.example/1"}, entryLinks(b))
}

func TestGetFeedsEmpty(t *testing.T) {
	store := newTestStore(t)
	feeds, err := store.GetFeeds()
	require.NoError(t, err)
	assert.Empty(t, feeds)

	_, err = store.GetFeed("https://missing.example/rss")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFeed(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss")

	title := "Renamed"
	disabled := false
	watermark := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		url      string
		update   FeedUpdate
		expected UpdateOutcome
	}{
		{name: "no fields", url: "https://a.example/rss", update: FeedUpdate{}, expected: UpdateNoFields},
		{name: "title", url: "https://a.example/rss", update: FeedUpdate{Title: &title}, expected: UpdateApplied},
		{name: "enabled and watermark", url: "https://a.example/rss", update: FeedUpdate{Enabled: &disabled, LastUpdated: &watermark}, expected: UpdateApplied},
		{name: "unknown feed", url: "https://missing.example/rss", update: FeedUpdate{Title: &title}, expected: UpdateUnknownFeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := store.UpdateFeed(tt.url, tt.update)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, outcome)
		})
	}

	feed, err := store.GetFeed("https://a.example/rss")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", feed.Title)
	assert.False(t, feed.Enabled)
	assert.True(t, feed.LastUpdated.Equal(watermark))
}

func TestRemoveFeedDeletesEntries(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://a.example/1", "2024-01-01T10:00:00Z"))

	require.NoError(t, store.RemoveFeed("https://a.example/rss"))
	assert.ErrorIs(t, store.RemoveFeed("https://a.example/rss"), ErrNotFound)

	// The link is free again once the owning feed is gone.
	mustAddFeed(t, store, "https://b.example/rss", testEntry("https://a.example/1", "2024-01-01T10:00:00Z"))
	b, err := store.GetFeedEntries("https://b.example/rss")
	require.NoError(t, err)
	assert.Len(t, b, 1)

	digest, err := store.GetEntriesByDateRange(*at("2023-01-01T00:00:00Z"), *at("2025-01-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, digest, 1)
}

func TestAddCategory(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddCategory("Tech"))
	assert.ErrorIs(t, store.AddCategory("Tech"), ErrDuplicate)
	assert.ErrorIs(t, store.AddCategory("  "), ErrInvalidName)

	categories, err := store.GetCategories()
	require.NoError(t, err)
	count := 0
	for _, c := range categories {
		if c.Name == "Tech" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDefaultCategoryIsPermanent(t *testing.T) {
	store := newTestStore(t)

	assert.ErrorIs(t, store.RemoveCategory(model.DefaultCategory), ErrDefaultCategory)
	for _, name := range []string{"Other", "", model.DefaultCategory} {
		assert.ErrorIs(t, store.RenameCategory(model.DefaultCategory, name), ErrDefaultCategory)
	}

	categories, err := store.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategory, categories[0].Name)
}

func TestRemoveCategoryReassignsEntries(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss",
		testEntry("https://a.example/1", "2024-01-01T10:00:00Z"),
		testEntry("https://a.example/2", "2024-01-02T10:00:00Z"),
	)
	require.NoError(t, store.AddCategory("Work"))
	require.NoError(t, store.SetEntryCategory("https://a.example/1", "Work"))
	require.NoError(t, store.SetEntryCategory("https://a.example/2", "Work"))

	require.NoError(t, store.RemoveCategory("Work"))
	assert.ErrorIs(t, store.RemoveCategory("Work"), ErrNotFound)

	entries, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.DefaultCategory, e.Category)
	}
}

func TestRenameCategoryKeepsReferences(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://a.example/1", "2024-01-01T10:00:00Z"))
	require.NoError(t, store.AddCategory("Work"))
	require.NoError(t, store.AddCategory("Play"))
	require.NoError(t, store.SetEntryCategory("https://a.example/1", "Work"))

	before, err := store.GetCategories()
	require.NoError(t, err)

	require.NoError(t, store.RenameCategory("Work", "Job"))
	assert.ErrorIs(t, store.RenameCategory("Job", "Play"), ErrDuplicate)
	assert.ErrorIs(t, store.RenameCategory("Missing", "Whatever"), ErrNotFound)
	assert.ErrorIs(t, store.RenameCategory("Job", ""), ErrInvalidName)

	category, err := store.GetEntryCategory("https://a.example/1")
	require.NoError(t, err)
	assert.Equal(t, "Job", category)

	after, err := store.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, before[1].ID, after[1].ID)
	assert.Equal(t, "Job", after[1].Name)
}

func TestSetEntryCategory(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://a.example/1", "2024-01-01T10:00:00Z"))
	require.NoError(t, store.AddCategory("Tech"))

	assert.ErrorIs(t, store.SetEntryCategory("https://a.example/1", "Missing"), ErrNotFound)
	assert.ErrorIs(t, store.SetEntryCategory("https://a.example/missing", "Tech"), ErrNotFound)
	require.NoError(t, store.SetEntryCategory("https://a.example/1", "Tech"))

	category, err := store.GetEntryCategory("https://a.example/1")
	require.NoError(t, err)
	assert.Equal(t, "Tech", category)
}

func TestGetEntryCategoryDefaultsForUnknownEntry(t *testing.T) {
	store := newTestStore(t)
	category, err := store.GetEntryCategory("https://nowhere.example/post")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategory, category)
}

func TestSetEntryReadStatus(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss",
		testEntry("https://a.example/1", "2024-01-01T10:00:00Z"),
		testEntry("https://a.example/2", "2024-01-02T10:00:00Z"),
		testEntry("https://a.example/3", "2024-01-03T10:00:00Z"),
	)

	require.NoError(t, store.SetEntryReadStatus(true, "https://a.example/1", "https://a.example/3"))
	require.NoError(t, store.SetEntryReadStatus(true))

	entries, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	read := map[string]bool{}
	for _, e := range entries {
		read[e.Link] = e.IsRead
	}
	assert.Equal(t, map[string]bool{
		"https://a.example/1": true,
		"https://a.example/2": false,
		"https://a.example/3": true,
	}, read)

	require.NoError(t, store.SetEntryReadStatus(false, "https://a.example/3"))
	entries, err = store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	assert.False(t, entries[0].IsRead)
}

func TestGetEntriesByDateRange(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss",
		testEntry("https://a.example/1", "2024-01-01T00:00:00Z"),
		testEntry("https://a.example/2", "2024-01-02T12:00:00Z"),
		testEntry("https://a.example/3", "2024-01-03T00:00:00Z"),
		testEntry("https://a.example/4", "2024-01-04T00:00:00Z"),
	)
	require.NoError(t, store.AddCategory("Tech"))
	require.NoError(t, store.SetEntryCategory("https://a.example/2", "Tech"))

	entries, err := store.GetEntriesByDateRange(*at("2024-01-01T00:00:00Z"), *at("2024-01-03T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "https://a.example/3", entries[0].Link)
	assert.Equal(t, "https://a.example/2", entries[1].Link)
	assert.Equal(t, "Tech", entries[1].Category)
	assert.Equal(t, "<p>about https://a.example/2</p>", entries[1].Description)
	assert.Equal(t, "https://a.example/1", entries[2].Link)
	assert.True(t, entries[2].PublishedAt.Equal(*at("2024-01-01T00:00:00Z")))

	entries, err = store.GetEntriesByDateRange(*at("2025-01-01T00:00:00Z"), *at("2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInsertEntries(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://a.example/1", "2024-01-01T10:00:00Z"))
	watermark := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	res, err := store.InsertEntries("https://a.example/rss", []model.Entry{
		testEntry("https://a.example/1", "2024-01-01T10:00:00Z"),
	}, watermark)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, []string{"https://a.example/1"}, res.Duplicates)

	feed, err := store.GetFeed("https://a.example/rss")
	require.NoError(t, err)
	assert.True(t, feed.LastUpdated.Equal(model.Epoch), "watermark must not move when nothing was inserted")

	res, err = store.InsertEntries("https://a.example/rss", []model.Entry{
		testEntry("https://a.example/2", "2024-01-02T10:00:00Z"),
		testEntry("https://a.example/2", "2024-01-02T10:00:00Z"),
	}, watermark)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"https://a.example/2"}, res.Duplicates)

	feed, err = store.GetFeed("https://a.example/rss")
	require.NoError(t, err)
	assert.True(t, feed.LastUpdated.Equal(watermark))

	_, err = store.InsertEntries("https://missing.example/rss", nil, watermark)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackdateFeed(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss",
		testEntry("https://a.example/old", "2024-01-01T00:00:00Z"),
		testEntry("https://a.example/new", "2024-01-10T00:00:00Z"),
	)
	mustAddFeed(t, store, "https://b.example/rss", testEntry("https://b.example/new", "2024-01-10T00:00:00Z"))
	cutoff := *at("2024-01-05T00:00:00Z")

	removed, err := store.BackdateFeed("https://a.example/rss", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	a, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/old"}, entryLinks(a))
	feed, err := store.GetFeed("https://a.example/rss")
	require.NoError(t, err)
	assert.True(t, feed.LastUpdated.Equal(cutoff))

	b, err := store.GetFeedEntries("https://b.example/rss")
	require.NoError(t, err)
	assert.Len(t, b, 1, "other feeds are untouched")

	_, err = store.BackdateFeed("https://missing.example/rss", cutoff)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveEntriesAfterDate(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss",
		testEntry("https://a.example/old", "2024-01-01T00:00:00Z"),
		testEntry("https://a.example/edge", "2024-01-05T00:00:00Z"),
		testEntry("https://a.example/new", "2024-01-10T00:00:00Z"),
	)

	removed, err := store.RemoveEntriesAfterDate("https://a.example/rss", *at("2024-01-05T00:00:00Z"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	entries, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/edge", "https://a.example/old"}, entryLinks(entries))
}

func TestGetFeedEntriesSkipsDisabledFeeds(t *testing.T) {
	store := newTestStore(t)
	mustAddFeed(t, store, "https://a.example/rss", testEntry("https://a.example/1", "2024-01-01T00:00:00Z"))
	disabled := false
	_, err := store.UpdateFeed("https://a.example/rss", FeedUpdate{Enabled: &disabled})
	require.NoError(t, err)

	entries, err := store.GetFeedEntries("https://a.example/rss")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
