// Package chattest provides an in-memory chat.Channel for tests.
package chattest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/m3rciful/datingbot/internal/chat"
)

// Reply is one outbound call captured by Recorder.
type Reply struct {
	Kind     string // text, choice, answer, photo
	Target   int64
	Text     string
	Choices  []chat.Choice
	Callback string
	Photo    []byte
}

// Recorder records every outbound call. Set Err to make all calls fail.
type Recorder struct {
	mu      sync.Mutex
	replies []Reply
	Err     error
}

var _ chat.Channel = (*Recorder)(nil)

func (r *Recorder) add(rep Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.replies = append(r.replies, rep)
	return nil
}

// SendText records a text reply.
func (r *Recorder) SendText(_ context.Context, target int64, text string) error {
	return r.add(Reply{Kind: "text", Target: target, Text: text})
}

// SendChoice records a choice prompt.
func (r *Recorder) SendChoice(_ context.Context, target int64, text string, choices []chat.Choice) error {
	return r.add(Reply{Kind: "choice", Target: target, Text: text, Choices: append([]chat.Choice(nil), choices...)})
}

// AnswerCallback records a callback acknowledgement.
func (r *Recorder) AnswerCallback(_ context.Context, id string) error {
	return r.add(Reply{Kind: "answer", Callback: id})
}

// SendPhoto records the photo bytes.
func (r *Recorder) SendPhoto(_ context.Context, target int64, photo io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, photo); err != nil {
		return err
	}
	return r.add(Reply{Kind: "photo", Target: target, Photo: buf.Bytes()})
}

// Replies returns a copy of everything recorded so far.
func (r *Recorder) Replies() []Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reply(nil), r.replies...)
}

// Messages returns user-visible replies (text, choice, photo) addressed to target.
func (r *Recorder) Messages(target int64) []Reply {
	var out []Reply
	for _, rep := range r.Replies() {
		if rep.Kind != "answer" && rep.Target == target {
			out = append(out, rep)
		}
	}
	return out
}

// Last returns the last user-visible reply addressed to target.
func (r *Recorder) Last(target int64) (Reply, bool) {
	msgs := r.Messages(target)
	if len(msgs) == 0 {
		return Reply{}, false
	}
	return msgs[len(msgs)-1], true
}

// Answers returns the acknowledged callback ids.
func (r *Recorder) Answers() []string {
	var out []string
	for _, rep := range r.Replies() {
		if rep.Kind == "answer" {
			out = append(out, rep.Callback)
		}
	}
	return out
}

// Reset drops all recorded replies.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = nil
}

// Files is an in-memory chat.FileSource.
type Files map[string][]byte

// Download returns the bytes stored for fileID.
func (f Files) Download(_ context.Context, fileID string) (io.ReadCloser, error) {
	data, ok := f[fileID]
	if !ok {
		return nil, ErrNoFile
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
