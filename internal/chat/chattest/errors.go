package chattest

import "errors"

// ErrNoFile is returned by Files.Download for unknown ids.
var ErrNoFile = errors.New("chattest: file not found")
