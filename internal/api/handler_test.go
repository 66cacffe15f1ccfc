package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	coredatabase "github.com/m3rciful/datingbot/core/database"
	"github.com/m3rciful/datingbot/internal/records"
	"github.com/m3rciful/datingbot/internal/session"
	"github.com/m3rciful/datingbot/migrations"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "api.db")}
	if err := coredatabase.RunMigrations(cfg, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := coredatabase.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(records.NewSQLStore(db))))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestUsersLifecycle(t *testing.T) {
	srv := newServer(t)
	base := srv.URL + "/api/users"

	if resp := do(t, http.MethodGet, base+"/42", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET missing = %d, want 404", resp.StatusCode)
	}

	resp := do(t, http.MethodPost, base, `{"chatId":42,"name":"Alex"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST = %d, want 201", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/users/42" {
		t.Fatalf("Location = %q", loc)
	}
	if resp := do(t, http.MethodPost, base, `{"chatId":42}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("POST existing = %d, want 200", resp.StatusCode)
	}

	if resp := do(t, http.MethodPatch, base+"/42", `{"age":30,"state":"waiting_for_place"}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PATCH = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodPatch, base+"/42", `{"state":"sleeping"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("PATCH bad state = %d, want 400", resp.StatusCode)
	}
	if resp := do(t, http.MethodPatch, base+"/42", `{"clear":["chatId"]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("PATCH bad clear = %d, want 400", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base+"/42", "")
	var rec records.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Age == nil || *rec.Age != 30 || rec.State != "waiting_for_place" || *rec.Name != "Alex" {
		t.Fatalf("GET = %+v", rec)
	}

	resp = do(t, http.MethodGet, base, "")
	var list []records.Record
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}

	if resp := do(t, http.MethodDelete, base+"/42", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, base+"/42", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("DELETE again = %d, want 404", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newServer(t)
	cases := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/users/abc", ""},
		{http.MethodPost, "/api/users", `{"chatId":0}`},
		{http.MethodPost, "/api/users", `{"chatId":1,"latitude":1}`},
		{http.MethodPost, "/api/users", `{"chatId":1,"unknown":true}`},
		{http.MethodPost, "/api/users", `not json`},
	}
	for _, tc := range cases {
		if resp := do(t, tc.method, srv.URL+tc.path, tc.body); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s %s %s = %d, want 400", tc.method, tc.path, tc.body, resp.StatusCode)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	if resp := do(t, http.MethodGet, srv.URL+"/health", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
}

// TestRecordStoreOverHTTP drives the bot-side session store through the HTTP
// client against the real API.
func TestRecordStoreOverHTTP(t *testing.T) {
	srv := newServer(t)
	client, err := records.NewHTTPClient(records.HTTPOptions{BaseURL: srv.URL, Client: srv.Client()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	store := session.NewRecordStore(client)
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	s.Name = session.Ptr("Alex")
	s.Age = session.Ptr(30)
	s.State = session.WaitingForPlace
	if err := store.Update(ctx, s); err != nil {
		t.Fatalf("Update: %v", err)
	}

	s.Restart()
	if err := store.Update(ctx, s); err != nil {
		t.Fatalf("Update restart: %v", err)
	}
	got, err := store.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if got.Name != nil || got.Age != nil || got.State != session.WaitingForName {
		t.Fatalf("session = %+v", got)
	}

	if _, err := client.Fetch(ctx, 999); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("Fetch missing err = %v", err)
	}
}
