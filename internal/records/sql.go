package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const recordColumns = `chat_id, name, description, age, latitude, longitude, picture_refs, dialog_state`

// SQLStore keeps records in the users table through sqlx. Queries use "?"
// placeholders rebound for the connected driver, so it runs on Postgres and SQLite.
type SQLStore struct {
	db *sqlx.DB
}

var _ Client = (*SQLStore)(nil)

// NewSQLStore wraps an open database with the users schema applied.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Fetch loads the record for chatID.
func (s *SQLStore) Fetch(ctx context.Context, chatID int64) (*Record, error) {
	var rec Record
	query := s.db.Rebind(`SELECT ` + recordColumns + ` FROM users WHERE chat_id = ?`)
	if err := s.db.GetContext(ctx, &rec, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("records: fetch %d: %w", chatID, err)
	}
	return &rec, nil
}

// List returns all records ordered by chat id.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	out := []Record{}
	if err := s.db.SelectContext(ctx, &out, `SELECT `+recordColumns+` FROM users ORDER BY chat_id`); err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	return out, nil
}

// Create inserts rec unless a record with the same id already exists.
func (s *SQLStore) Create(ctx context.Context, rec Record) (*Record, error) {
	out, _, err := s.Insert(ctx, rec)
	return out, err
}

// Insert inserts rec and reports whether a new row was written.
func (s *SQLStore) Insert(ctx context.Context, rec Record) (*Record, bool, error) {
	if err := rec.Validate(); err != nil {
		return nil, false, err
	}
	if rec.State == "" {
		rec.State = "none"
	}
	query := s.db.Rebind(`INSERT INTO users (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query,
		rec.ChatID, rec.Name, rec.Description, rec.Age,
		rec.Latitude, rec.Longitude, rec.Pictures, rec.State,
	)
	if err != nil {
		return nil, false, fmt.Errorf("records: insert %d: %w", rec.ChatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("records: insert %d: %w", rec.ChatID, err)
	}
	stored, err := s.Fetch(ctx, rec.ChatID)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// Patch applies p to the record for chatID.
func (s *SQLStore) Patch(ctx context.Context, chatID int64, p Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	for _, f := range p.Clear {
		if f == FieldLocation {
			sets = append(sets, "latitude = NULL", "longitude = NULL")
			continue
		}
		sets = append(sets, f+" = NULL")
	}
	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Age != nil {
		set("age", *p.Age)
	}
	if p.Latitude != nil {
		set("latitude", *p.Latitude)
		set("longitude", *p.Longitude)
	}
	if p.Pictures != nil {
		set("picture_refs", Pictures(*p.Pictures))
	}
	if p.State != nil {
		set("dialog_state", *p.State)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, chatID)

	query := s.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE chat_id = ?`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("records: patch %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: patch %d: %w", chatID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record for chatID.
func (s *SQLStore) Delete(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE chat_id = ?`), chatID)
	if err != nil {
		return fmt.Errorf("records: delete %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: delete %d: %w", chatID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
