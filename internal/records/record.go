// Package records defines the user record exchanged with the record store
// and the clients that read and write it.
package records

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrNotFound is returned when no record exists for a chat id.
var ErrNotFound = errors.New("records: not found")

// Clearable field names accepted in Patch.Clear.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldAge         = "age"
	FieldLocation    = "location"
)

var clearable = []string{FieldName, FieldDescription, FieldAge, FieldLocation}

// Record is the stored form of a user profile.
type Record struct {
	ChatID      int64    `db:"chat_id" json:"chatId"`
	Name        *string  `db:"name" json:"name"`
	Description *string  `db:"description" json:"description"`
	Age         *int     `db:"age" json:"age"`
	Latitude    *float64 `db:"latitude" json:"latitude"`
	Longitude   *float64 `db:"longitude" json:"longitude"`
	Pictures    Pictures `db:"picture_refs" json:"pictures"`
	State       string   `db:"dialog_state" json:"state"`
}

// Validate checks the invariants shared by every store.
func (r Record) Validate() error {
	if r.ChatID == 0 {
		return errors.New("records: chatId is required")
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return errors.New("records: latitude and longitude must be set together")
	}
	if r.Age != nil && *r.Age <= 0 {
		return errors.New("records: age must be positive")
	}
	return nil
}

// Pictures is an ordered list of object references stored as a JSON array.
type Pictures []string

// Value implements driver.Valuer.
func (p Pictures) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *Pictures) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("records: cannot scan %T into Pictures", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("records: decode pictures: %w", err)
	}
	*p = out
	return nil
}

// Patch is a partial update. Nil fields are left unchanged; fields listed in
// Clear are reset to null.
type Patch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Age         *int      `json:"age,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Pictures    *[]string `json:"pictures,omitempty"`
	State       *string   `json:"state,omitempty"`
	Clear       []string  `json:"clear,omitempty"`
}

// Validate rejects unknown clear fields and contradictory combinations.
func (p Patch) Validate() error {
	for _, f := range p.Clear {
		if !slices.Contains(clearable, f) {
			return fmt.Errorf("records: field %q cannot be cleared", f)
		}
	}
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return errors.New("records: latitude and longitude must be set together")
	}
	if p.Latitude != nil && p.Clears(FieldLocation) {
		return errors.New("records: location is both set and cleared")
	}
	if p.Name != nil && p.Clears(FieldName) ||
		p.Description != nil && p.Clears(FieldDescription) ||
		p.Age != nil && p.Clears(FieldAge) {
		return errors.New("records: field is both set and cleared")
	}
	if p.Age != nil && *p.Age <= 0 {
		return errors.New("records: age must be positive")
	}
	return nil
}

// Clears reports whether field is listed in Clear.
func (p Patch) Clears(field string) bool {
	return slices.Contains(p.Clear, field)
}

// Apply returns r with p applied.
func (p Patch) Apply(r Record) Record {
	if p.Clears(FieldName) {
		r.Name = nil
	}
	if p.Clears(FieldDescription) {
		r.Description = nil
	}
	if p.Clears(FieldAge) {
		r.Age = nil
	}
	if p.Clears(FieldLocation) {
		r.Latitude, r.Longitude = nil, nil
	}
	if p.Name != nil {
		r.Name = p.Name
	}
	if p.Description != nil {
		r.Description = p.Description
	}
	if p.Age != nil {
		r.Age = p.Age
	}
	if p.Latitude != nil {
		r.Latitude, r.Longitude = p.Latitude, p.Longitude
	}
	if p.Pictures != nil {
		r.Pictures = slices.Clone(*p.Pictures)
	}
	if p.State != nil {
		r.State = *p.State
	}
	return r
}

// Client is the record store contract used by the bot.
type Client interface {
	// Fetch returns ErrNotFound when the record does not exist.
	Fetch(ctx context.Context, chatID int64) (*Record, error)
	// Create stores rec. Creating an existing id returns the stored record unchanged.
	Create(ctx context.Context, rec Record) (*Record, error)
	Patch(ctx context.Context, chatID int64, p Patch) error
}
