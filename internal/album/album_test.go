package album

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/chat/chattest"
	"github.com/m3rciful/datingbot/internal/photos"
	"github.com/m3rciful/datingbot/internal/session"
)

func newAlbum(t *testing.T, max int) (*Album, *session.MemoryStore, *photos.MemoryStore, *chattest.Recorder) {
	t.Helper()
	store := session.NewMemoryStore()
	ph := photos.NewMemoryStore()
	files := chattest.Files{"file-1": []byte("jpeg bytes")}
	a, err := New(store, ph, files, max)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, store, ph, &chattest.Recorder{}
}

func done(id int64, refs ...string) *session.Session {
	return &session.Session{ID: id, Name: session.Ptr("Alex"), State: session.Done, PictureRefs: refs}
}

func TestAddStoresPhoto(t *testing.T) {
	ctx := context.Background()
	a, store, ph, ch := newAlbum(t, 3)
	if err := store.Update(ctx, done(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := a.Add(ctx, ch, chat.Photo{ChatID: 1, FileID: "file-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s, _ := store.GetOrCreate(ctx, 1)
	if len(s.PictureRefs) != 1 || !strings.HasPrefix(s.PictureRefs[0], "users/1/photos/") {
		t.Fatalf("refs = %v", s.PictureRefs)
	}
	rc, err := ph.Get(ctx, s.PictureRefs[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "jpeg bytes" {
		t.Fatalf("stored %q", data)
	}
	if last, _ := ch.Last(1); last.Text != "Photo saved. You have 1 of 3." {
		t.Fatalf("reply = %q", last.Text)
	}
}

func TestAddRequiresFinishedProfile(t *testing.T) {
	ctx := context.Background()
	a, store, _, ch := newAlbum(t, 3)
	if err := store.Update(ctx, &session.Session{ID: 1, Name: session.Ptr("Alex"), State: session.WaitingForAge}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := a.Add(ctx, ch, chat.Photo{ChatID: 1, FileID: "file-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if last, _ := ch.Last(1); last.Text != FinishProfileFirst {
		t.Fatalf("reply = %q", last.Text)
	}
	if s, _ := store.GetOrCreate(ctx, 1); len(s.PictureRefs) != 0 {
		t.Fatalf("refs = %v", s.PictureRefs)
	}
}

func TestAddRespectsLimit(t *testing.T) {
	ctx := context.Background()
	a, store, _, ch := newAlbum(t, 1)
	if err := store.Update(ctx, done(1, "users/1/photos/old.jpg")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := a.Add(ctx, ch, chat.Photo{ChatID: 1, FileID: "file-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if last, _ := ch.Last(1); !strings.HasPrefix(last.Text, "Your album is full") {
		t.Fatalf("reply = %q", last.Text)
	}
}

func TestAddDownloadFailure(t *testing.T) {
	ctx := context.Background()
	a, store, _, ch := newAlbum(t, 3)
	if err := store.Update(ctx, done(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := a.Add(ctx, ch, chat.Photo{ChatID: 1, FileID: "missing"})
	if !errors.Is(err, chattest.ErrNoFile) {
		t.Fatalf("err = %v", err)
	}
	if s, _ := store.GetOrCreate(ctx, 1); len(s.PictureRefs) != 0 {
		t.Fatalf("refs = %v", s.PictureRefs)
	}
}

type failingUpdates struct {
	*session.MemoryStore
	err error
}

func (f failingUpdates) Update(context.Context, *session.Session) error { return f.err }

func TestAddRemovesPhotoWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStore()
	if err := mem.Update(ctx, done(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	storeErr := errors.New("store down")
	ph := photos.NewMemoryStore()
	a, err := New(failingUpdates{MemoryStore: mem, err: storeErr}, ph, chattest.Files{"file-1": []byte("jpeg")}, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch := &chattest.Recorder{}

	if err := a.Add(ctx, ch, chat.Photo{ChatID: 1, FileID: "file-1"}); !errors.Is(err, storeErr) {
		t.Fatalf("err = %v", err)
	}
	if s, _ := mem.GetOrCreate(ctx, 1); len(s.PictureRefs) != 0 {
		t.Fatalf("refs = %v", s.PictureRefs)
	}
	objs, err := ph.GetAll(ctx, 1)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(objs) != 0 {
		t.Fatalf("%d objects left behind", len(objs))
	}
	if len(ch.Messages(1)) != 0 {
		t.Fatalf("unexpected replies: %+v", ch.Messages(1))
	}
}
