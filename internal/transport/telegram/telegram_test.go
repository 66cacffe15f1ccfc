package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	tgsender "github.com/m3rciful/datingbot/core/telegram/sender"
	"github.com/m3rciful/datingbot/internal/chat"
)

type sent struct {
	to   string
	what interface{}
	opts []interface{}
}

type fakeAPI struct {
	mu        sync.Mutex
	sends     []sent
	responds  []string
	files     map[string]string
	failFirst int
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst > 0 {
		f.failFirst--
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	f.sends = append(f.sends, sent{to: to.Recipient(), what: what, opts: opts})
	return &tele.Message{}, nil
}

func (f *fakeAPI) Respond(c *tele.Callback, _ ...*tele.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responds = append(f.responds, c.ID)
	return nil
}

func (f *fakeAPI) File(file *tele.File) (io.ReadCloser, error) {
	body, ok := f.files[file.FileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeAPI) snapshot() ([]sent, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sends...), append([]string(nil), f.responds...)
}

func newChannel(t *testing.T, api *fakeAPI) *Channel {
	t.Helper()
	d := tgsender.NewDispatcher(tgsender.Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	t.Cleanup(d.Close)
	ch, err := NewChannel(api, d)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return ch
}

func TestFromUpdate(t *testing.T) {
	user := &tele.User{ID: 42}
	privateChat := &tele.Chat{ID: 42}
	cases := []struct {
		name string
		upd  tele.Update
		want chat.Event
	}{
		{
			name: "text",
			upd:  tele.Update{ID: 1, Message: &tele.Message{Chat: privateChat, Sender: user, Text: "/start"}},
			want: chat.TextMessage{UpdateID: 1, ChatID: 42, SenderID: 42, Text: "/start"},
		},
		{
			name: "callback",
			upd:  tele.Update{ID: 2, Callback: &tele.Callback{ID: "cb", Sender: user, Data: "\fagree|x"}},
			want: chat.Callback{UpdateID: 2, ID: "cb", FromID: 42, Data: "agree", Payload: "x"},
		},
		{
			name: "photo",
			upd: tele.Update{ID: 3, Message: &tele.Message{Chat: privateChat, Sender: user, Caption: "me",
				Photo: &tele.Photo{File: tele.File{FileID: "file-1"}}}},
			want: chat.Photo{UpdateID: 3, ChatID: 42, SenderID: 42, FileID: "file-1", Caption: "me"},
		},
		{
			name: "sticker",
			upd:  tele.Update{ID: 4, Message: &tele.Message{Chat: privateChat, Sender: user}},
			want: chat.Other{UpdateID: 4, ChatID: 42, Kind: "unsupported_message"},
		},
		{
			name: "edited",
			upd:  tele.Update{ID: 5, EditedMessage: &tele.Message{Chat: privateChat, Text: "x"}},
			want: chat.Other{UpdateID: 5, Kind: "edited_message"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromUpdate(tc.upd); got != tc.want {
				t.Fatalf("FromUpdate = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestPipeClosesWithUpdates(t *testing.T) {
	updates := make(chan tele.Update, 2)
	updates <- tele.Update{ID: 1, Message: &tele.Message{Chat: &tele.Chat{ID: 1}, Text: "a"}}
	updates <- tele.Update{ID: 2, Message: &tele.Message{Chat: &tele.Chat{ID: 1}, Text: "b"}}
	close(updates)

	var got []string
	for ev := range Pipe(context.Background(), updates) {
		got = append(got, ev.(chat.TextMessage).Text)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("events = %v", got)
	}
}

func TestPipeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := Pipe(ctx, make(chan tele.Update))
	cancel()
	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatal("Pipe did not stop after cancel")
	}
}

func TestChannelSends(t *testing.T) {
	api := &fakeAPI{failFirst: 1}
	ch := newChannel(t, api)
	ctx := context.Background()

	if err := ch.SendText(ctx, 7, "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := ch.SendChoice(ctx, 7, "add?", []chat.Choice{{Label: "Yes", Data: "agree"}, {Label: "No", Data: "disagree"}}); err != nil {
		t.Fatalf("SendChoice: %v", err)
	}
	if err := ch.SendPhoto(ctx, 7, strings.NewReader("jpeg")); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}

	sends, _ := api.snapshot()
	if len(sends) != 3 {
		t.Fatalf("sends = %d", len(sends))
	}
	if sends[0].to != "7" || sends[0].what != "hello" {
		t.Fatalf("text send = %+v", sends[0])
	}
	markup, ok := sends[1].opts[0].(*tele.ReplyMarkup)
	if !ok || len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("choice markup = %#v", sends[1].opts)
	}
	if btn := markup.InlineKeyboard[0][0]; btn.Unique != "agree" || btn.Text != "Yes" {
		t.Fatalf("button = %+v", btn)
	}
	if _, ok := sends[2].what.(*tele.Photo); !ok {
		t.Fatalf("photo send = %T", sends[2].what)
	}
}

func TestChannelAnswerCallbackIsQueued(t *testing.T) {
	api := &fakeAPI{}
	ch := newChannel(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	if err := ch.AnswerCallback(ctx, "cb-1"); err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, responds := api.snapshot(); len(responds) == 1 && responds[0] == "cb-1" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("callback was not answered")
}

func TestChannelDownload(t *testing.T) {
	api := &fakeAPI{files: map[string]string{"f1": "bytes"}}
	ch := newChannel(t, api)
	rc, err := ch.Download(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "bytes" {
		t.Fatalf("data = %q", data)
	}
	if _, err := ch.Download(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
