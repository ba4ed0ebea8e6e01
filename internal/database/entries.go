package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/readless/internal/model"
)

// --- Entry Methods ---

// insertEntries adds entries to a feed in the default category. Entries whose
// link already exists are skipped and reported as duplicates.
func (s *SQLStore) insertEntries(tx *sql.Tx, feedID int64, entries []model.Entry) (InsertResult, error) {
	var res InsertResult
	if len(entries) == 0 {
		return res, nil
	}

	defaultID, err := s.categoryID(tx, model.DefaultCategory)
	if err != nil {
		return res, fmt.Errorf("default category missing: %w", err)
	}

	for _, e := range entries {
		ib := s.flavor.NewInsertBuilder()
		ib.InsertInto("entries").
			Cols("feed_id", "title", "link", "description", "content", "published", "published_at", "category_id").
			Values(feedID, e.Title, e.Link, e.Description, e.Content, e.Published, unixOrNil(e.PublishedAt), defaultID)
		ib.SQL("ON CONFLICT (link) DO NOTHING")
		query, args := ib.Build()

		r, err := tx.Exec(query, args...)
		if err != nil {
			return res, fmt.Errorf("failed to insert entry %s: %w", e.Link, err)
		}
		if rowsAffected(r) == 0 {
			res.Duplicates = append(res.Duplicates, e.Link)
			continue
		}
		res.Inserted++
	}
	return res, nil
}

// InsertEntries stores new entries for a feed and, when at least one was
// inserted, moves the feed's watermark to the given time. Both happen in one
// transaction.
func (s *SQLStore) InsertEntries(feedURL string, entries []model.Entry, watermark time.Time) (InsertResult, error) {
	var res InsertResult
	err := s.withTx(func(tx *sql.Tx) error {
		feedID, err := s.feedID(tx, feedURL)
		if err != nil {
			return err
		}
		res, err = s.insertEntries(tx, feedID, entries)
		if err != nil {
			return err
		}
		if res.Inserted == 0 {
			return nil
		}

		ub := s.flavor.NewUpdateBuilder()
		ub.Update("feeds").Set(ub.Assign("last_updated", watermark.UTC())).Where(ub.Equal("id", feedID))
		query, args := ub.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to advance watermark: %w", err)
		}
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

// GetFeedEntries returns the entries of an enabled feed, newest first.
func (s *SQLStore) GetFeedEntries(feedURL string) ([]model.Entry, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(
		"e.id", "e.feed_id", "e.title", "e.link",
		"COALESCE(e.description, '')", "COALESCE(e.content, '')", "COALESCE(e.published, '')",
		"e.published_at", "e.is_read", "c.name",
	).
		From("entries e").
		Join("feeds f", "e.feed_id = f.id").
		Join("categories c", "e.category_id = c.id").
		Where(sb.Equal("f.url", feedURL), sb.Equal("f.enabled", true)).
		OrderBy("e.published_at DESC", "e.id DESC")
	query, args := sb.Build()

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed entries: %w", err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		var (
			e           model.Entry
			publishedAt sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.FeedID, &e.Title, &e.Link, &e.Description, &e.Content, &e.Published,
			&publishedAt, &e.IsRead, &e.Category); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		e.PublishedAt = timeFromUnix(publishedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetEntryCategory moves one entry to the named category.
func (s *SQLStore) SetEntryCategory(link, category string) error {
	return s.withTx(func(tx *sql.Tx) error {
		categoryID, err := s.categoryID(tx, category)
		if err != nil {
			return err
		}

		ub := s.flavor.NewUpdateBuilder()
		ub.Update("entries").Set(ub.Assign("category_id", categoryID)).Where(ub.Equal("link", link))
		query, args := ub.Build()
		res, err := tx.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("failed to set entry category: %w", err)
		}
		if rowsAffected(res) == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetEntryCategory returns the entry's category name. An unknown entry
// resolves to the default category.
func (s *SQLStore) GetEntryCategory(link string) (string, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("c.name").
		From("entries e").
		Join("categories c", "e.category_id = c.id").
		Where(sb.Equal("e.link", link))
	query, args := sb.Build()

	var name string
	err := s.conn.QueryRow(query, args...).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultCategory, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get entry category: %w", err)
	}
	return name, nil
}

// SetEntryReadStatus marks one or more entries read or unread. A batch is
// applied in a single transaction.
func (s *SQLStore) SetEntryReadStatus(isRead bool, links ...string) error {
	if len(links) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, link := range links {
			ub := s.flavor.NewUpdateBuilder()
			ub.Update("entries").Set(ub.Assign("is_read", isRead)).Where(ub.Equal("link", link))
			query, args := ub.Build()
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("failed to set read status of %s: %w", link, err)
			}
		}
		return nil
	})
}

// GetEntriesByDateRange returns entries published within [start, end],
// newest first.
func (s *SQLStore) GetEntriesByDateRange(start, end time.Time) ([]model.DigestEntry, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("e.title", "e.link", "COALESCE(e.description, '')", "c.name", "e.published_at").
		From("entries e").
		Join("categories c", "e.category_id = c.id").
		Where(sb.Between("e.published_at", start.Unix(), end.Unix())).
		OrderBy("e.published_at DESC", "e.id DESC")
	query, args := sb.Build()

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries by date range: %w", err)
	}
	defer rows.Close()

	entries := []model.DigestEntry{}
	for rows.Next() {
		var (
			e           model.DigestEntry
			publishedAt int64
		)
		if err := rows.Scan(&e.Title, &e.Link, &e.Description, &e.Category, &publishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan digest row: %w", err)
		}
		e.PublishedAt = time.Unix(publishedAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveEntriesAfterDate deletes the feed's entries published after cutoff.
func (s *SQLStore) RemoveEntriesAfterDate(feedURL string, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.withTx(func(tx *sql.Tx) error {
		feedID, err := s.feedID(tx, feedURL)
		if err != nil {
			return err
		}
		removed, err = s.deleteEntriesAfter(tx, feedID, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLStore) deleteEntriesAfter(q queryer, feedID int64, cutoff time.Time) (int64, error) {
	del := s.flavor.NewDeleteBuilder()
	del.DeleteFrom("entries").Where(del.Equal("feed_id", feedID), del.GreaterThan("published_at", cutoff.Unix()))
	query, args := del.Build()

	res, err := q.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove entries: %w", err)
	}
	return rowsAffected(res), nil
}
