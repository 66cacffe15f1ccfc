package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/m3rciful/datingbot/internal/records"
)

func TestDialogStateRoundTrip(t *testing.T) {
	for _, st := range States() {
		text, err := st.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", st, err)
		}
		var back DialogState
		if err := back.UnmarshalText(text); err != nil || back != st {
			t.Fatalf("UnmarshalText(%q) = %v, %v", text, back, err)
		}
	}
	if _, err := ParseState("waiting_for_pizza"); err == nil {
		t.Fatal("unknown state must not parse")
	}
	if DialogState(42).Valid() {
		t.Fatal("out-of-range state reported valid")
	}
	if !None.Resting() || !Done.Resting() || WaitingForAge.Resting() {
		t.Fatal("resting states are None and Done only")
	}
}

func TestSessionJSONUsesStateNames(t *testing.T) {
	data, err := json.Marshal(&Session{ID: 1, State: WaitingForPlace})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"id":1,"state":"waiting_for_place"}` {
		t.Fatalf("json = %s", data)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Session{ID: 1, Name: Ptr("Alex"), Age: Ptr(30), Location: &Location{1, 2}, PictureRefs: []string{"a"}}
	c := orig.Clone()
	*c.Name = "Sam"
	*c.Age = 31
	c.Location.Latitude = 9
	c.PictureRefs[0] = "b"
	if *orig.Name != "Alex" || *orig.Age != 30 || orig.Location.Latitude != 1 || orig.PictureRefs[0] != "a" {
		t.Fatalf("clone shares memory with original: %+v", orig)
	}
}

func TestRestart(t *testing.T) {
	s := &Session{ID: 1, Name: Ptr("Alex"), Age: Ptr(30), Description: Ptr("hi"), State: Done}
	s.Restart()
	if s.Name != nil || s.Age != nil || s.State != WaitingForName {
		t.Fatalf("Restart left %+v", s)
	}
	if s.Description == nil {
		t.Fatal("Restart must keep the description")
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, 100)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.ID != 100 || s.State != None || s.Name != nil {
		t.Fatalf("fresh session = %+v", s)
	}

	s.Name = Ptr("Alex")
	s.Age = Ptr(30)
	s.Location = &Location{Latitude: 52.52, Longitude: 13.40}
	s.PictureRefs = []string{"users/100/photos/1.jpg"}
	s.State = WaitingForAddDescription
	if err := store.Update(ctx, s); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Updating twice with the same session is indistinguishable from once.
	if err := store.Update(ctx, s); err != nil {
		t.Fatalf("Update again: %v", err)
	}

	got, err := store.GetOrCreate(ctx, 100)
	if err != nil {
		t.Fatalf("GetOrCreate after update: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("stored = %+v, want %+v", got, s)
	}

	got.Restart()
	got.Location = nil
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update restart: %v", err)
	}
	again, _ := store.GetOrCreate(ctx, 100)
	if again.Name != nil || again.Age != nil || again.Location != nil || again.State != WaitingForName {
		t.Fatalf("cleared fields came back: %+v", again)
	}

	bad := again.Clone()
	bad.State = DialogState(99)
	if err := store.Update(ctx, bad); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Update invalid state err = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStoreKeepsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s, _ := store.GetOrCreate(ctx, 1)
	s.Name = Ptr("uncommitted")
	s.State = WaitingForAge

	again, _ := store.GetOrCreate(ctx, 1)
	if again.Name != nil || again.State != None {
		t.Fatalf("uncommitted change leaked into the store: %+v", again)
	}
}

func TestBadgerStore(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	store := NewBadgerStore(db)
	defer store.Close()
	storeContract(t, store)
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	store, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	ctx := context.Background()
	s, _ := store.GetOrCreate(ctx, 5)
	s.State = WaitingForAge
	s.Name = Ptr("Alex")
	if err := store.Update(ctx, s); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, _ := reopened.GetOrCreate(ctx, 5)
	if got.State != WaitingForAge || got.Name == nil || *got.Name != "Alex" {
		t.Fatalf("after reopen = %+v", got)
	}
}

// fakeRecords is an in-memory records.Client.
type fakeRecords struct {
	recs    map[int64]records.Record
	creates int
}

func (f *fakeRecords) Fetch(_ context.Context, id int64) (*records.Record, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeRecords) Create(_ context.Context, rec records.Record) (*records.Record, error) {
	f.creates++
	if existing, ok := f.recs[rec.ChatID]; ok {
		return &existing, nil
	}
	f.recs[rec.ChatID] = rec
	return &rec, nil
}

func (f *fakeRecords) Patch(_ context.Context, id int64, p records.Patch) error {
	rec, ok := f.recs[id]
	if !ok {
		return records.ErrNotFound
	}
	if err := p.Validate(); err != nil {
		return err
	}
	f.recs[id] = p.Apply(rec)
	return nil
}

func TestRecordStore(t *testing.T) {
	fake := &fakeRecords{recs: map[int64]records.Record{}}
	storeContract(t, NewRecordStore(fake))
	if fake.creates != 1 {
		t.Fatalf("creates = %d, want 1", fake.creates)
	}
}

func TestRecordStoreRejectsUnknownState(t *testing.T) {
	fake := &fakeRecords{recs: map[int64]records.Record{1: {ChatID: 1, State: "dancing"}}}
	if _, err := NewRecordStore(fake).GetOrCreate(context.Background(), 1); err == nil {
		t.Fatal("expected error for unknown stored state")
	}
}
