package manager

import (
	"time"

	"github.com/bryan-buckman/readless/internal/database"
	"github.com/bryan-buckman/readless/internal/model"
	"github.com/sirupsen/logrus"
)

// GetEntries returns the entries of one feed, newest first.
func (m *Manager) GetEntries(url string) ([]model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetFeedEntries(url)
}

// GetAllEntries returns the entries of every enabled feed in the index,
// feed by feed in id order, each stamped with its feed's title.
func (m *Manager) GetAllEntries() ([]model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := []model.Entry{}
	for _, feed := range m.sortedFeeds() {
		if !feed.Enabled {
			continue
		}
		entries, err := m.store.GetFeedEntries(feed.URL)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			entries[i].FeedTitle = feed.Title
		}
		all = append(all, entries...)
	}
	return all, nil
}

// SetEntryReadStatus marks entries read or unread in one batch.
func (m *Manager) SetEntryReadStatus(isRead bool, links ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SetEntryReadStatus(isRead, links...)
}

// GetEntriesByDateRange returns entries published within [start, end].
func (m *Manager) GetEntriesByDateRange(start, end time.Time) ([]model.DigestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetEntriesByDateRange(start, end)
}

// --- Categories ---

func (m *Manager) GetCategories() ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetCategories()
}

func (m *Manager) AddCategory(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.AddCategory(name); err != nil {
		return err
	}
	m.log.WithField("category", name).Info("Category added")
	return nil
}

// RemoveCategory deletes a category after moving its entries to the
// default category.
func (m *Manager) RemoveCategory(name string) error {
	if name == model.DefaultCategory {
		return database.ErrDefaultCategory
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.RemoveCategory(name); err != nil {
		return err
	}
	m.log.WithField("category", name).Info("Category removed")
	return nil
}

func (m *Manager) RenameCategory(oldName, newName string) error {
	if oldName == model.DefaultCategory {
		return database.ErrDefaultCategory
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.RenameCategory(oldName, newName); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"category": oldName, "to": newName}).Info("Category renamed")
	return nil
}

func (m *Manager) SetEntryCategory(link, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SetEntryCategory(link, category)
}

func (m *Manager) GetEntryCategory(link string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetEntryCategory(link)
}
