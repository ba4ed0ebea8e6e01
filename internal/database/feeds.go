package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/readless/internal/model"
)

// --- Feed Methods ---

// AddFeed inserts a feed together with its initial entries in one
// transaction. Initial entries land in the default category; entries whose
// link is already stored are skipped. It returns the number of entries
// inserted, or ErrDuplicate if the feed URL is taken.
func (s *SQLStore) AddFeed(feed model.Feed, entries []model.Entry) (int, error) {
	inserted := 0
	err := s.withTx(func(tx *sql.Tx) error {
		ib := s.flavor.NewInsertBuilder()
		ib.InsertInto("feeds").
			Cols("url", "title", "last_updated", "enabled").
			Values(feed.URL, feed.Title, feed.LastUpdated.UTC(), feed.Enabled)
		query, args := ib.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			if s.isUnique(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert feed: %w", err)
		}

		feedID, err := s.feedID(tx, feed.URL)
		if err != nil {
			return err
		}
		res, err := s.insertEntries(tx, feedID, entries)
		if err != nil {
			return err
		}
		inserted = res.Inserted
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetFeeds returns all feeds ordered by id.
func (s *SQLStore) GetFeeds() ([]model.Feed, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").OrderBy("id")
	query, args := sb.Build()

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	feeds := []model.Feed{}
	for rows.Next() {
		f, err := scanFeed(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// GetFeed returns the feed with the given URL or ErrNotFound.
func (s *SQLStore) GetFeed(url string) (*model.Feed, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("url", url))
	query, args := sb.Build()

	f, err := scanFeed(s.conn.QueryRow(query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &f, nil
}

// UpdateFeed applies the non-nil fields of update. An unknown URL is not an
// error; it is reported as UpdateUnknownFeed.
func (s *SQLStore) UpdateFeed(url string, update FeedUpdate) (UpdateOutcome, error) {
	if update.empty() {
		return UpdateNoFields, nil
	}

	ub := s.flavor.NewUpdateBuilder()
	ub.Update("feeds")
	if update.Title != nil {
		ub.SetMore(ub.Assign("title", *update.Title))
	}
	if update.Enabled != nil {
		ub.SetMore(ub.Assign("enabled", *update.Enabled))
	}
	if update.LastUpdated != nil {
		ub.SetMore(ub.Assign("last_updated", update.LastUpdated.UTC()))
	}
	ub.Where(ub.Equal("url", url))
	query, args := ub.Build()

	res, err := s.conn.Exec(query, args...)
	if err != nil {
		return UpdateApplied, fmt.Errorf("failed to update feed: %w", err)
	}
	if rowsAffected(res) == 0 {
		return UpdateUnknownFeed, nil
	}
	return UpdateApplied, nil
}

// RemoveFeed deletes a feed and all of its entries.
func (s *SQLStore) RemoveFeed(url string) error {
	return s.withTx(func(tx *sql.Tx) error {
		feedID, err := s.feedID(tx, url)
		if err != nil {
			return err
		}

		del := s.flavor.NewDeleteBuilder()
		del.DeleteFrom("entries").Where(del.Equal("feed_id", feedID))
		query, args := del.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete feed entries: %w", err)
		}

		del = s.flavor.NewDeleteBuilder()
		del.DeleteFrom("feeds").Where(del.Equal("id", feedID))
		query, args = del.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete feed: %w", err)
		}
		return nil
	})
}

// BackdateFeed sets the feed's watermark to cutoff and removes its entries
// published after cutoff, atomically. It returns the number of entries removed.
func (s *SQLStore) BackdateFeed(url string, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.withTx(func(tx *sql.Tx) error {
		feedID, err := s.feedID(tx, url)
		if err != nil {
			return err
		}

		ub := s.flavor.NewUpdateBuilder()
		ub.Update("feeds").Set(ub.Assign("last_updated", cutoff.UTC())).Where(ub.Equal("id", feedID))
		query, args := ub.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to set watermark: %w", err)
		}

		removed, err = s.deleteEntriesAfter(tx, feedID, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
