package chat

import (
	"context"
	"io"
)

// Choice is one option of an inline choice prompt.
type Choice struct {
	Label string
	Data  string
}

// Channel sends replies back to users.
type Channel interface {
	SendText(ctx context.Context, target int64, text string) error
	SendChoice(ctx context.Context, target int64, text string, choices []Choice) error
	// AnswerCallback acknowledges a callback so the client stops its spinner.
	AnswerCallback(ctx context.Context, callbackID string) error
	SendPhoto(ctx context.Context, target int64, photo io.Reader) error
}

// FileSource downloads files referenced by inbound events.
type FileSource interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}
