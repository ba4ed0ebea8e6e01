package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/bryan-buckman/readless/internal/model"
)

// --- Category Methods ---

// GetCategories returns all categories ordered by id, so the default
// category comes first.
func (s *SQLStore) GetCategories() ([]model.Category, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("id", "name").From("categories").OrderBy("id")
	query, args := sb.Build()

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// AddCategory creates a category. It returns ErrDuplicate if the name is taken.
func (s *SQLStore) AddCategory(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("categories").Cols("name").Values(name)
	query, args := ib.Build()
	if _, err := s.conn.Exec(query, args...); err != nil {
		if s.isUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to add category: %w", err)
	}
	return nil
}

// RemoveCategory moves the category's entries to the default category and
// then deletes it, in one transaction.
func (s *SQLStore) RemoveCategory(name string) error {
	if name == model.DefaultCategory {
		return ErrDefaultCategory
	}

	return s.withTx(func(tx *sql.Tx) error {
		id, err := s.categoryID(tx, name)
		if err != nil {
			return err
		}
		defaultID, err := s.categoryID(tx, model.DefaultCategory)
		if err != nil {
			return fmt.Errorf("default category missing: %w", err)
		}

		// Entries are reassigned before the category row goes away.
		ub := s.flavor.NewUpdateBuilder()
		ub.Update("entries").Set(ub.Assign("category_id", defaultID)).Where(ub.Equal("category_id", id))
		query, args := ub.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to reassign entries: %w", err)
		}

		del := s.flavor.NewDeleteBuilder()
		del.DeleteFrom("categories").Where(del.Equal("id", id))
		query, args = del.Build()
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
}

// RenameCategory renames a category in place; its id and therefore every
// entry reference stay valid.
func (s *SQLStore) RenameCategory(oldName, newName string) error {
	if oldName == model.DefaultCategory {
		return ErrDefaultCategory
	}
	if strings.TrimSpace(newName) == "" || newName == model.DefaultCategory {
		return ErrInvalidName
	}

	ub := s.flavor.NewUpdateBuilder()
	ub.Update("categories").Set(ub.Assign("name", newName)).Where(ub.Equal("name", oldName))
	query, args := ub.Build()

	res, err := s.conn.Exec(query, args...)
	if err != nil {
		if s.isUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to rename category: %w", err)
	}
	if rowsAffected(res) == 0 {
		return ErrNotFound
	}
	return nil
}
