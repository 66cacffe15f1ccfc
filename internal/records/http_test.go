package records

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClientMapsStatusCodes(t *testing.T) {
	var patched Patch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/users/404":
			http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Path == "/api/users/1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"chatId":1,"name":"Alex","pictures":[],"state":"done"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/api/users/1":
			if err := json.NewDecoder(r.Body).Decode(&patched); err != nil {
				t.Errorf("decode patch: %v", err)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL + "/", Client: srv.Client()})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	ctx := context.Background()

	if _, err := client.Fetch(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch 404 err = %v, want ErrNotFound", err)
	}

	rec, err := client.Fetch(ctx, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec.Name == nil || *rec.Name != "Alex" || rec.State != "done" {
		t.Fatalf("Fetch = %+v", rec)
	}

	if err := client.Patch(ctx, 1, Patch{Clear: []string{FieldAge}, State: ptr("waiting_for_name")}); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if !patched.Clears(FieldAge) || patched.State == nil || *patched.State != "waiting_for_name" {
		t.Fatalf("server saw patch %+v", patched)
	}

	_, err = client.Create(ctx, Record{ChatID: 5})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Create err = %v, want APIError 500", err)
	}
	if apiErr.Code() != "records_http_500" || errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected APIError classification: %v", apiErr)
	}
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(HTTPOptions{}); err == nil {
		t.Fatal("expected error")
	}
}
