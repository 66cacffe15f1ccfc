// Package album stores photos sent by onboarded users.
package album

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/photos"
	"github.com/m3rciful/datingbot/internal/session"
)

// DefaultMaxPictures caps the album when no limit is configured.
const DefaultMaxPictures = 10

// Replies sent by the album.
const (
	FinishProfileFirst = "Finish your profile first, then send photos."
	AlbumFull          = "Your album is full. You can keep up to %d photos."
	PhotoSaved         = "Photo saved. You have %d of %d."
)

// Album uploads photo events to the object store and records the reference
// on the session.
type Album struct {
	store  session.Store
	photos photos.Store
	files  chat.FileSource
	max    int
}

// New creates an Album. maxPictures <= 0 selects DefaultMaxPictures.
func New(store session.Store, photoStore photos.Store, files chat.FileSource, maxPictures int) (*Album, error) {
	if store == nil || photoStore == nil || files == nil {
		return nil, errors.New("album: session store, photo store and file source are required")
	}
	if maxPictures <= 0 {
		maxPictures = DefaultMaxPictures
	}
	return &Album{store: store, photos: photoStore, files: files, max: maxPictures}, nil
}

// Add handles one photo event.
func (a *Album) Add(ctx context.Context, ch chat.Channel, ev chat.Photo) error {
	s, err := a.store.GetOrCreate(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("album: load session %d: %w", ev.ChatID, err)
	}
	if s.State != session.Done || !s.Onboarded() {
		return ch.SendText(ctx, s.ID, FinishProfileFirst)
	}
	if len(s.PictureRefs) >= a.max {
		return ch.SendText(ctx, s.ID, fmt.Sprintf(AlbumFull, a.max))
	}

	rc, err := a.files.Download(ctx, ev.FileID)
	if err != nil {
		return fmt.Errorf("album: download %s: %w", ev.FileID, err)
	}
	defer rc.Close()

	ref, err := a.photos.Put(ctx, s.ID, rc)
	if err != nil {
		return fmt.Errorf("album: store photo: %w", err)
	}
	s.PictureRefs = append(s.PictureRefs, ref)
	if err := a.store.Update(ctx, s); err != nil {
		// The ref was never committed, so the object must not outlive this call.
		if delErr := a.photos.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			logger.Warn(ctx, "album", "album.orphan_left",
				slog.String("ref", ref),
				slog.String("err", delErr.Error()),
			)
		}
		return fmt.Errorf("album: save session %d: %w", s.ID, err)
	}
	logger.Info(ctx, "album", "album.photo_saved",
		slog.String("ref", ref),
		slog.Int("count", len(s.PictureRefs)),
	)
	return ch.SendText(ctx, s.ID, fmt.Sprintf(PhotoSaved, len(s.PictureRefs), a.max))
}
