// Package photos stores user pictures in an object store.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when the reference does not exist.
var ErrNotFound = errors.New("photos: not found")

// Store is the object store contract. Callers close every returned stream.
type Store interface {
	Put(ctx context.Context, userID int64, r io.Reader) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	GetAll(ctx context.Context, userID int64) ([]io.ReadCloser, error)
	// Delete removes the object under ref. Deleting a missing object is not an error.
	Delete(ctx context.Context, ref string) error
}

// userPrefix is the key prefix shared by every photo of a user.
func userPrefix(userID int64) string {
	return "users/" + strconv.FormatInt(userID, 10) + "/photos/"
}

// objectKey builds users/<id>/photos/<unixnano>-<uuid>.jpg. The zero-padded
// timestamp keeps lexical order equal to upload order.
func objectKey(userID int64, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s%019d-%s.jpg", userPrefix(userID), at.UnixNano(), id)
}

func validRef(ref string) error {
	if !strings.HasPrefix(ref, "users/") || strings.Contains(ref, "..") {
		return fmt.Errorf("photos: invalid ref %q", ref)
	}
	return nil
}

func closeAll(rcs []io.ReadCloser) {
	for _, rc := range rcs {
		_ = rc.Close()
	}
}
