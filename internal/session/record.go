package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/m3rciful/datingbot/internal/records"
)

// RecordStore keeps sessions in the record store through a records.Client.
type RecordStore struct {
	client records.Client
}

var _ Store = (*RecordStore)(nil)

// NewRecordStore proxies session persistence to client.
func NewRecordStore(client records.Client) *RecordStore {
	return &RecordStore{client: client}
}

// GetOrCreate fetches the record for id, creating an empty one when absent.
func (r *RecordStore) GetOrCreate(ctx context.Context, id int64) (*Session, error) {
	rec, err := r.client.Fetch(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		rec, err = r.client.Create(ctx, ToRecord(New(id)))
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %d: %w", id, err)
	}
	return FromRecord(rec)
}

// Update sends the full session as a patch. Absent optional fields are cleared
// so the stored record matches s exactly.
func (r *RecordStore) Update(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session: nil session")
	}
	if !s.State.Valid() {
		return fmt.Errorf("session %d: %w", s.ID, ErrInvalidState)
	}
	if err := r.client.Patch(ctx, s.ID, toPatch(s)); err != nil {
		return fmt.Errorf("session: save %d: %w", s.ID, err)
	}
	return nil
}

// ToRecord converts a session into its stored form.
func ToRecord(s *Session) records.Record {
	rec := records.Record{
		ChatID:      s.ID,
		Name:        s.Name,
		Description: s.Description,
		Age:         s.Age,
		Pictures:    slices.Clone(s.PictureRefs),
		State:       s.State.String(),
	}
	if s.Location != nil {
		lat, lon := s.Location.Latitude, s.Location.Longitude
		rec.Latitude, rec.Longitude = &lat, &lon
	}
	return rec
}

// FromRecord converts a stored record into a session.
func FromRecord(rec *records.Record) (*Session, error) {
	if rec == nil {
		return nil, fmt.Errorf("session: nil record")
	}
	state := None
	if rec.State != "" {
		parsed, err := ParseState(rec.State)
		if err != nil {
			return nil, err
		}
		state = parsed
	}
	s := &Session{
		ID:          rec.ChatID,
		Name:        rec.Name,
		Description: rec.Description,
		Age:         rec.Age,
		PictureRefs: slices.Clone([]string(rec.Pictures)),
		State:       state,
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		s.Location = &Location{Latitude: *rec.Latitude, Longitude: *rec.Longitude}
	}
	return s, nil
}

func toPatch(s *Session) records.Patch {
	rec := ToRecord(s)
	pictures := []string(rec.Pictures)
	if pictures == nil {
		pictures = []string{}
	}
	state := rec.State
	p := records.Patch{
		Name:        rec.Name,
		Description: rec.Description,
		Age:         rec.Age,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		Pictures:    &pictures,
		State:       &state,
	}
	if s.Name == nil {
		p.Clear = append(p.Clear, records.FieldName)
	}
	if s.Description == nil {
		p.Clear = append(p.Clear, records.FieldDescription)
	}
	if s.Age == nil {
		p.Clear = append(p.Clear, records.FieldAge)
	}
	if s.Location == nil {
		p.Clear = append(p.Clear, records.FieldLocation)
	}
	return p
}
