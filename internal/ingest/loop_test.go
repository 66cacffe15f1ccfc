package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/chat/chattest"
	"github.com/m3rciful/datingbot/internal/commands"
	"github.com/m3rciful/datingbot/internal/dialog"
	"github.com/m3rciful/datingbot/internal/session"
)

type stubGeo struct{}

func (stubGeo) Lookup(context.Context, string) (session.Location, bool, error) {
	return session.Location{Latitude: 1, Longitude: 2}, true, nil
}

type engine struct {
	store *session.MemoryStore
	ch    *chattest.Recorder
	loop  *Loop
}

func newEngine(t *testing.T, opts Options) *engine {
	t.Helper()
	store := session.NewMemoryStore()
	table, err := dialog.NewDefaultTable(stubGeo{})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	disp, err := dialog.NewDispatcher(store, table)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	reg := commands.NewRegistry()
	if err := commands.Builtins(reg, nil); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	router, err := commands.NewRouter(reg, store)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	ch := &chattest.Recorder{}
	opts.Channel = ch
	if opts.Commands == nil {
		opts.Commands = router
	}
	if opts.Dialog == nil {
		opts.Dialog = disp
	}
	loop, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &engine{store: store, ch: ch, loop: loop}
}

// feed runs the loop over evs and waits for it to finish.
func (e *engine) feed(t *testing.T, evs ...chat.Event) {
	t.Helper()
	events := make(chan chat.Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	if err := e.loop.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func (e *engine) seed(t *testing.T, s *session.Session) {
	t.Helper()
	if err := e.store.Update(context.Background(), s); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (e *engine) load(t *testing.T, id int64) *session.Session {
	t.Helper()
	s, err := e.store.GetOrCreate(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func msg(id int64, text string) chat.TextMessage {
	return chat.TextMessage{ChatID: id, SenderID: id, Text: text}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		ev   chat.Event
		want Route
	}{
		{msg(1, "/start"), RouteCommand},
		{msg(1, "  /profile"), RouteCommand},
		{msg(1, "Alex"), RouteDialog},
		{chat.Callback{FromID: 1, Data: "agree"}, RouteDialog},
		{chat.Photo{ChatID: 1, FileID: "f"}, RouteAlbum},
		{chat.Other{ChatID: 1, Kind: "sticker"}, RouteDrop},
		{msg(0, "no chat"), RouteDrop},
		{nil, RouteDrop},
	}
	for _, tc := range cases {
		if got := Classify(tc.ev); got != tc.want {
			t.Fatalf("Classify(%#v) = %s, want %s", tc.ev, got, tc.want)
		}
	}
}

func TestStartForNewUserAsksName(t *testing.T) {
	e := newEngine(t, Options{})
	e.feed(t, msg(1, "/start"))
	if s := e.load(t, 1); s.State != session.WaitingForName {
		t.Fatalf("state = %s", s.State)
	}
	if last, _ := e.ch.Last(1); !strings.Contains(last.Text, "What's your name?") {
		t.Fatalf("reply = %q", last.Text)
	}
}

func TestNameMovesToAge(t *testing.T) {
	e := newEngine(t, Options{})
	e.seed(t, &session.Session{ID: 1, State: session.WaitingForName})
	e.feed(t, msg(1, "Alex"))
	s := e.load(t, 1)
	if session.Deref(s.Name) != "Alex" || s.State != session.WaitingForAge {
		t.Fatalf("session = %+v", s)
	}
}

func TestBadAgeRepromptsInPlace(t *testing.T) {
	e := newEngine(t, Options{})
	e.seed(t, &session.Session{ID: 1, Name: session.Ptr("Alex"), State: session.WaitingForAge})
	e.feed(t, msg(1, "abc"))
	s := e.load(t, 1)
	if s.State != session.WaitingForAge || s.Age != nil {
		t.Fatalf("session = %+v", s)
	}
	if last, _ := e.ch.Last(1); last.Text != dialog.PromptAgeAgain {
		t.Fatalf("reply = %q", last.Text)
	}
}

func TestAgeMovesToPlace(t *testing.T) {
	e := newEngine(t, Options{})
	e.seed(t, &session.Session{ID: 1, Name: session.Ptr("Alex"), State: session.WaitingForAge})
	e.feed(t, msg(1, "30"))
	s := e.load(t, 1)
	if session.Deref(s.Age) != 30 || s.State != session.WaitingForPlace {
		t.Fatalf("session = %+v", s)
	}
}

func TestDecliningDescriptionFinishes(t *testing.T) {
	e := newEngine(t, Options{})
	e.seed(t, &session.Session{ID: 1, State: session.WaitingForAddDescription})
	e.feed(t, chat.Callback{ID: "cb", FromID: 1, Data: dialog.ChoiceDisagree})
	if s := e.load(t, 1); s.State != session.Done {
		t.Fatalf("state = %s", s.State)
	}
	msgs := e.ch.Messages(1)
	if len(msgs) != 1 || msgs[0].Text != dialog.SetupComplete {
		t.Fatalf("replies = %+v", msgs)
	}
	if len(e.ch.Answers()) != 1 {
		t.Fatal("callback not answered")
	}
}

func TestProfileShowsStoredFields(t *testing.T) {
	e := newEngine(t, Options{})
	e.seed(t, &session.Session{
		ID:          1,
		Name:        session.Ptr("Alex"),
		Age:         session.Ptr(30),
		Description: session.Ptr("Likes hiking"),
		State:       session.Done,
	})
	e.feed(t, msg(1, "/profile"))
	last, _ := e.ch.Last(1)
	for _, part := range []string{"Alex", "30", "Likes hiking"} {
		if !strings.Contains(last.Text, part) {
			t.Fatalf("profile %q lacks %q", last.Text, part)
		}
	}
	if s := e.load(t, 1); s.State != session.Done {
		t.Fatalf("state = %s", s.State)
	}
}

func TestFullOnboarding(t *testing.T) {
	e := newEngine(t, Options{})
	e.feed(t,
		msg(1, "/start"),
		msg(1, "Alex"),
		msg(1, "30"),
		msg(1, "Moscow"),
		chat.Callback{ID: "cb", FromID: 1, Data: dialog.ChoiceAgree},
		msg(1, "Likes hiking"),
	)
	s := e.load(t, 1)
	if s.State != session.Done || session.Deref(s.Description) != "Likes hiking" || s.Location == nil {
		t.Fatalf("session = %+v", s)
	}
}

type countingDialog struct {
	calls atomic.Int32
}

func (c *countingDialog) Dispatch(context.Context, chat.Channel, chat.Event) error {
	c.calls.Add(1)
	return nil
}

func TestCommandPreemptsDialog(t *testing.T) {
	d := &countingDialog{}
	e := newEngine(t, Options{Dialog: d})
	e.seed(t, &session.Session{ID: 1, Name: session.Ptr("Alex"), State: session.WaitingForAge})
	e.feed(t, msg(1, "/reset"))
	if d.calls.Load() != 0 {
		t.Fatalf("dialog invoked %d times for a command", d.calls.Load())
	}
	if s := e.load(t, 1); s.State != session.WaitingForName {
		t.Fatalf("state = %s", s.State)
	}
}

// orderDialog records per-chat arrival order and detects overlapping turns.
type orderDialog struct {
	mu       sync.Mutex
	seen     map[int64][]string
	active   map[int64]int
	overlaps int
}

func (o *orderDialog) Dispatch(_ context.Context, _ chat.Channel, ev chat.Event) error {
	id := ev.Chat()
	o.mu.Lock()
	o.active[id]++
	if o.active[id] > 1 {
		o.overlaps++
	}
	o.mu.Unlock()

	time.Sleep(200 * time.Microsecond)

	o.mu.Lock()
	o.seen[id] = append(o.seen[id], ev.(chat.TextMessage).Text)
	o.active[id]--
	o.mu.Unlock()
	return nil
}

func TestPerUserOrdering(t *testing.T) {
	d := &orderDialog{seen: map[int64][]string{}, active: map[int64]int{}}
	e := newEngine(t, Options{Dialog: d, Workers: 4, MaxPending: 100})
	var evs []chat.Event
	for i := 0; i < 20; i++ {
		for _, id := range []int64{1, 2, 3} {
			evs = append(evs, msg(id, string(rune('a'+i))))
		}
	}
	e.feed(t, evs...)

	if d.overlaps != 0 {
		t.Fatalf("%d overlapping turns for one user", d.overlaps)
	}
	for _, id := range []int64{1, 2, 3} {
		got := d.seen[id]
		if len(got) != 20 {
			t.Fatalf("chat %d saw %d events", id, len(got))
		}
		for i, text := range got {
			if text != string(rune('a'+i)) {
				t.Fatalf("chat %d order = %v", id, got)
			}
		}
	}
}

type faultyDialog struct {
	handled atomic.Int32
}

func (f *faultyDialog) Dispatch(_ context.Context, _ chat.Channel, ev chat.Event) error {
	switch ev.(chat.TextMessage).Text {
	case "panic":
		panic("boom")
	case "fail":
		return errors.New("store unreachable")
	}
	f.handled.Add(1)
	return nil
}

func TestFailureIsolation(t *testing.T) {
	d := &faultyDialog{}
	e := newEngine(t, Options{Dialog: d})
	e.feed(t,
		msg(1, "panic"),
		msg(1, "ok"),
		msg(1, "fail"),
		msg(1, "ok"),
		msg(2, "ok"),
	)
	if got := d.handled.Load(); got != 3 {
		t.Fatalf("handled %d events after failures, want 3", got)
	}
}

func TestRecoverReturnsPanicError(t *testing.T) {
	h := Recover(func(context.Context, chat.Event) error { panic("boom") })
	err := h(context.Background(), msg(1, "x"))
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("err = %v", err)
	}
	if code := deriveErrorCode(err); code != "PANIC" {
		t.Fatalf("code = %q", code)
	}
}

func TestDropsUnclassifiedEvents(t *testing.T) {
	d := &countingDialog{}
	e := newEngine(t, Options{Dialog: d})
	e.feed(t,
		chat.Other{ChatID: 1, Kind: "sticker"},
		chat.Photo{ChatID: 1, FileID: "f"},
		msg(0, "no chat"),
	)
	if d.calls.Load() != 0 || len(e.ch.Replies()) != 0 {
		t.Fatalf("dropped events were handled: calls=%d replies=%v", d.calls.Load(), e.ch.Replies())
	}
}

type blockingDialog struct {
	started chan struct{}
	release chan struct{}
	done    atomic.Bool
	ctxErr  atomic.Value
}

func (b *blockingDialog) Dispatch(ctx context.Context, _ chat.Channel, _ chat.Event) error {
	close(b.started)
	<-b.release
	if err := ctx.Err(); err != nil {
		b.ctxErr.Store(err)
	}
	b.done.Store(true)
	return nil
}

func TestCancelWaitsForInFlight(t *testing.T) {
	d := &blockingDialog{started: make(chan struct{}), release: make(chan struct{})}
	e := newEngine(t, Options{Dialog: d})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan chat.Event, 1)
	events <- msg(1, "hi")

	result := make(chan error, 1)
	go func() { result <- e.loop.Run(ctx, events) }()

	<-d.started
	if e.loop.State() != Running {
		t.Fatalf("state = %s, want running", e.loop.State())
	}
	cancel()

	select {
	case <-result:
		t.Fatal("Run returned before the in-flight event finished")
	case <-time.After(50 * time.Millisecond):
	}
	if e.loop.State() != Stopped {
		t.Fatalf("state = %s, want stopped after cancel", e.loop.State())
	}

	close(d.release)
	if err := <-result; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.done.Load() {
		t.Fatal("in-flight event did not complete")
	}
	if v := d.ctxErr.Load(); v != nil {
		t.Fatalf("handler context was cancelled: %v", v)
	}
	if err := e.loop.Run(context.Background(), events); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Run err = %v", err)
	}
}

func TestRateLimitFilter(t *testing.T) {
	now := time.Unix(0, 0)
	var limited atomic.Int32
	f := RateLimit(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(context.Context, chat.Event) { limited.Add(1) },
		now:       func() time.Time { return now },
	})
	ctx := context.Background()
	if !f(ctx, msg(1, "a")) {
		t.Fatal("first event limited")
	}
	if f(ctx, msg(1, "b")) {
		t.Fatal("second event within interval passed")
	}
	if !f(ctx, msg(2, "a")) {
		t.Fatal("other chat limited")
	}
	if !f(ctx, chat.Callback{FromID: 1, Data: "agree"}) {
		t.Fatal("excluded kind limited")
	}
	now = now.Add(time.Second)
	if !f(ctx, msg(1, "c")) {
		t.Fatal("event after interval limited")
	}
	if limited.Load() != 1 {
		t.Fatalf("OnLimited called %d times", limited.Load())
	}
}

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(errors.New("x")); got != "ERRORSTRING" {
		t.Fatalf("code = %q", got)
	}
	wrapped := errors.Join(errors.New("a"), &PanicError{})
	if got := deriveErrorCode(wrapped); got == "" {
		t.Fatal("empty code")
	}
}
