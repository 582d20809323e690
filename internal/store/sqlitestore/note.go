package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

type NoteStore struct {
	db    *sql.DB
	clock store.Clock
}

func scanNote(scanner interface{ Scan(...any) error }) (*model.Note, error) {
	var n model.Note
	var createdAt, updatedAt int64

	err := scanner.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	n.CreatedAt = fromMillis(createdAt)
	n.UpdatedAt = fromMillis(updatedAt)
	return &n, nil
}

const noteCols = `id, user_id, title, content, created_at, updated_at`

func (s *NoteStore) Create(ctx context.Context, ownerID, title, content string) (*model.Note, error) {
	id := model.NewID()
	now := toMillis(s.clock.Now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, ownerID, title, content, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", wrapErr(err))
	}
	return s.Get(ctx, id, ownerID)
}

// List returns the owner's notes, most recently updated first. A non-empty
// search keeps notes whose title or content contains it, ignoring case.
func (s *NoteStore) List(ctx context.Context, ownerID, search string) ([]model.Note, error) {
	query := `SELECT ` + noteCols + ` FROM notes WHERE user_id = ?`
	args := []any{ownerID}
	if search != "" {
		query += ` AND (contains_fold(title, ?) OR contains_fold(content, ?))`
		args = append(args, search, search)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", wrapErr(err))
	}
	defer rows.Close()

	notes := []model.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", wrapErr(err))
	}
	return notes, nil
}

func (s *NoteStore) Get(ctx context.Context, id, ownerID string) (*model.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteCols+` FROM notes WHERE id = ? AND user_id = ?`, id, ownerID)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", wrapErr(err))
	}
	return n, nil
}

func (s *NoteStore) Update(ctx context.Context, id, ownerID string, patch model.NotePatch) (*model.Note, error) {
	if patch.Empty() {
		return nil, store.ErrEmptyPatch
	}

	sets := []string{"updated_at = ?"}
	args := []any{toMillis(s.clock.Now())}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	args = append(args, id, ownerID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", wrapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.Get(ctx, id, ownerID)
}

func (s *NoteStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", wrapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
