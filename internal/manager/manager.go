// Package manager coordinates the feed parser and the store: it keeps the
// in-memory index of known feeds, runs fetch/diff/persist cycles and routes
// every category and read-state change through storage.
package manager

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bryan-buckman/readless/internal/database"
	"github.com/bryan-buckman/readless/internal/model"
	"github.com/bryan-buckman/readless/internal/rss"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// DefaultFetchTimeout bounds a single feed fetch.
const DefaultFetchTimeout = 30 * time.Second

var (
	ErrUnknownFeed     = errors.New("unknown feed")
	ErrFetchFailed     = errors.New("fetch failed")
	ErrNoFeeds         = errors.New("no feeds")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Manager is safe for concurrent use. Store access and index updates are
// serialized by one lock; feed fetches run outside it.
type Manager struct {
	mu           sync.Mutex
	store        database.Store
	parser       rss.Parser
	log          logrus.FieldLogger
	fetchTimeout time.Duration
	now          func() time.Time

	// feeds is a read-through cache of the store's feeds keyed by URL.
	feeds map[string]model.Feed
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The standard logrus logger is used otherwise.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithFetchTimeout bounds each parser call.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager and loads the feed index from store.
func New(store database.Store, parser rss.Parser, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:        store,
		parser:       parser,
		log:          logrus.StandardLogger(),
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload replaces the feed index with the store's current feeds.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload()
}

func (m *Manager) reload() error {
	feeds, err := m.store.GetFeeds()
	if err != nil {
		return fmt.Errorf("load feeds: %w", err)
	}
	m.feeds = lo.KeyBy(feeds, func(f model.Feed) string { return f.URL })
	return nil
}

// GetFeeds returns a snapshot of the index ordered by id.
func (m *Manager) GetFeeds() []model.Feed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedFeeds()
}

func (m *Manager) sortedFeeds() []model.Feed {
	feeds := lo.Values(m.feeds)
	slices.SortFunc(feeds, func(a, b model.Feed) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return feeds
}

// DatabaseType reports the storage backend in use.
func (m *Manager) DatabaseType() string {
	return m.store.DatabaseType()
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}
