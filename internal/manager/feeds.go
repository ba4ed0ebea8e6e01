package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/readless/internal/database"
	"github.com/bryan-buckman/readless/internal/model"
	"github.com/bryan-buckman/readless/internal/rss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// SkipReason says why a fetched entry was not stored.
type SkipReason string

const (
	SkipMissingLink     SkipReason = "missing link"
	SkipMissingDate     SkipReason = "missing date"
	SkipUnparseableDate SkipReason = "unparseable date"
	SkipNotNew          SkipReason = "not newer than watermark"
	SkipDuplicateLink   SkipReason = "duplicate link"
)

// Skipped is one entry left out of a refresh.
type Skipped struct {
	Link   string
	Reason SkipReason
}

// RefreshResult describes a successful refresh. Zero NewEntries with no
// Skipped means the feed simply had nothing new.
type RefreshResult struct {
	NewEntries int
	Skipped    []Skipped
}

// FeedRefresh is the outcome of one feed in RefreshAll.
type FeedRefresh struct {
	URL    string
	Result RefreshResult
	Err    error
}

// BackdateReport summarizes BackdateFeeds.
type BackdateReport struct {
	Cutoff  time.Time
	Updated int
	Removed int64
	// Failed maps feed URLs to the error that stopped their backdate.
	Failed map[string]error
}

func (m *Manager) fetch(ctx context.Context, url string) (*rss.ParsedFeed, error) {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	parsed, err := m.parser.Parse(ctx, url)
	if err != nil {
		fetchFailures.Inc()
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return parsed, nil
}

// AddFeed validates url by fetching it and stores the feed with an epoch
// watermark and no entries. The first RefreshFeed ingests its content.
func (m *Manager) AddFeed(ctx context.Context, url string) error {
	parsed, err := m.fetch(ctx, url)
	if err != nil {
		m.log.WithField("url", url).WithError(err).Warn("Feed rejected")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	title := parsed.Title
	if title == "" {
		title = url
	}
	feed := model.Feed{URL: url, Title: title, Enabled: true, LastUpdated: model.Epoch}
	if _, err := m.store.AddFeed(feed, nil); err != nil {
		return err
	}

	stored, err := m.store.GetFeed(url)
	if err != nil {
		return fmt.Errorf("reload added feed: %w", err)
	}
	m.feeds[url] = *stored
	m.log.WithFields(logrus.Fields{"url": url, "title": title}).Info("Feed added")
	return nil
}

// RefreshFeed fetches a known feed and stores the entries published after
// its watermark. If anything was stored the watermark moves to now.
//
// The fetch runs without holding the manager lock; the diff and the write
// run under it against the feed's watermark at that point.
func (m *Manager) RefreshFeed(ctx context.Context, url string) (RefreshResult, error) {
	timer := prometheus.NewTimer(refreshDuration)
	defer timer.ObserveDuration()

	m.mu.Lock()
	_, ok := m.feeds[url]
	m.mu.Unlock()
	if !ok {
		return RefreshResult{}, fmt.Errorf("%w: %s", ErrUnknownFeed, url)
	}

	parsed, err := m.fetch(ctx, url)
	if err != nil {
		m.log.WithField("url", url).WithError(err).Warn("Refresh failed")
		return RefreshResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingest(url, parsed)
}

func (m *Manager) ingest(url string, parsed *rss.ParsedFeed) (RefreshResult, error) {
	var res RefreshResult

	// The feed may have been removed while it was being fetched.
	feed, ok := m.feeds[url]
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrUnknownFeed, url)
	}

	fresh, skipped := diffEntries(parsed.Entries, feed.LastUpdated)
	res.Skipped = skipped
	if len(fresh) > 0 {
		watermark := m.clock()
		if watermark.Before(feed.LastUpdated) {
			watermark = feed.LastUpdated
		}

		ins, err := m.store.InsertEntries(url, fresh, watermark)
		if errors.Is(err, database.ErrNotFound) {
			delete(m.feeds, url)
			return RefreshResult{}, fmt.Errorf("%w: %s", ErrUnknownFeed, url)
		}
		if err != nil {
			return RefreshResult{}, fmt.Errorf("store entries: %w", err)
		}

		for _, link := range ins.Duplicates {
			res.Skipped = append(res.Skipped, Skipped{Link: link, Reason: SkipDuplicateLink})
		}
		res.NewEntries = ins.Inserted
		if ins.Inserted > 0 {
			feed.LastUpdated = watermark
			m.feeds[url] = feed
		}
	}

	recordRefresh(res)
	m.log.WithFields(logrus.Fields{
		"url":     url,
		"new":     res.NewEntries,
		"skipped": len(res.Skipped),
	}).Info("Feed refreshed")
	return res, nil
}

// diffEntries keeps, in order, the entries with a link and a date strictly
// after watermark.
func diffEntries(raw []rss.RawEntry, watermark time.Time) ([]model.Entry, []Skipped) {
	var (
		fresh   []model.Entry
		skipped []Skipped
	)
	for _, r := range raw {
		if r.Link == "" {
			skipped = append(skipped, Skipped{Link: r.Link, Reason: SkipMissingLink})
			continue
		}
		published, err := rss.ParsePublished(r.Published)
		if err != nil {
			reason := SkipUnparseableDate
			if errors.Is(err, rss.ErrMissingDate) {
				reason = SkipMissingDate
			}
			skipped = append(skipped, Skipped{Link: r.Link, Reason: reason})
			continue
		}
		if !published.After(watermark) {
			skipped = append(skipped, Skipped{Link: r.Link, Reason: SkipNotNew})
			continue
		}
		fresh = append(fresh, model.Entry{
			Link:        r.Link,
			Title:       r.Title,
			Description: r.Description,
			Content:     r.Content,
			Published:   r.Published,
			PublishedAt: &published,
		})
	}
	return fresh, skipped
}

// RefreshAll refreshes every feed that is enabled when the sweep starts,
// in id order. One feed failing does not stop the others.
func (m *Manager) RefreshAll(ctx context.Context) []FeedRefresh {
	m.mu.Lock()
	feeds := m.sortedFeeds()
	m.mu.Unlock()

	var results []FeedRefresh
	for _, feed := range feeds {
		if !feed.Enabled {
			continue
		}
		if ctx.Err() != nil {
			results = append(results, FeedRefresh{URL: feed.URL, Err: fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())})
			continue
		}
		res, err := m.RefreshFeed(ctx, feed.URL)
		results = append(results, FeedRefresh{URL: feed.URL, Result: res, Err: err})
	}
	return results
}

// RemoveFeed deletes a feed and its entries.
func (m *Manager) RemoveFeed(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.RemoveFeed(url)
	if errors.Is(err, database.ErrNotFound) {
		delete(m.feeds, url)
		return fmt.Errorf("%w: %s", ErrUnknownFeed, url)
	}
	if err != nil {
		return err
	}
	delete(m.feeds, url)
	m.log.WithField("url", url).Info("Feed removed")
	return nil
}

// ToggleFeedStatus flips the feed's enabled flag as stored and returns the
// new state.
func (m *Manager) ToggleFeedStatus(url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	feed, err := m.store.GetFeed(url)
	if errors.Is(err, database.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrUnknownFeed, url)
	}
	if err != nil {
		return false, err
	}

	enabled := !feed.Enabled
	outcome, err := m.store.UpdateFeed(url, database.FeedUpdate{Enabled: &enabled})
	if err != nil {
		return false, err
	}
	if outcome == database.UpdateUnknownFeed {
		delete(m.feeds, url)
		return false, fmt.Errorf("%w: %s", ErrUnknownFeed, url)
	}

	feed.Enabled = enabled
	m.feeds[url] = *feed
	m.log.WithFields(logrus.Fields{"url": url, "enabled": enabled}).Info("Feed toggled")
	return enabled, nil
}

// UpdateFeedTitle renames a feed.
func (m *Manager) UpdateFeedTitle(url, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome, err := m.store.UpdateFeed(url, database.FeedUpdate{Title: &title})
	if err != nil {
		return err
	}
	if outcome == database.UpdateUnknownFeed {
		delete(m.feeds, url)
		return fmt.Errorf("%w: %s", ErrUnknownFeed, url)
	}
	if feed, ok := m.feeds[url]; ok {
		feed.Title = title
		m.feeds[url] = feed
	}
	return nil
}

// BackdateFeeds rewinds every stored feed's watermark to now minus days and
// deletes the entries published after it. Each feed is handled atomically;
// a failing feed is reported and does not undo the others.
func (m *Manager) BackdateFeeds(days int) (BackdateReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := BackdateReport{Failed: map[string]error{}}
	if days < 0 {
		return report, fmt.Errorf("%w: days must not be negative, got %d", ErrInvalidArgument, days)
	}

	feeds, err := m.store.GetFeeds()
	if err != nil {
		return report, err
	}
	if len(feeds) == 0 {
		return report, ErrNoFeeds
	}

	report.Cutoff = m.clock().AddDate(0, 0, -days)
	for _, feed := range feeds {
		removed, err := m.store.BackdateFeed(feed.URL, report.Cutoff)
		if err != nil {
			m.log.WithField("url", feed.URL).WithError(err).Warn("Backdate failed")
			report.Failed[feed.URL] = err
			continue
		}
		report.Updated++
		report.Removed += removed

		feed.LastUpdated = report.Cutoff
		m.feeds[feed.URL] = feed
	}

	m.log.WithFields(logrus.Fields{
		"days":    days,
		"feeds":   report.Updated,
		"removed": report.Removed,
	}).Info("Feeds backdated")
	return report, nil
}
