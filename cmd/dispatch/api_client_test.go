package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func withDaemon(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	prev := apiAddr
	apiAddr = srv.URL
	t.Cleanup(func() { apiAddr = prev })
}

func TestAPIGet_DecodesResponse(t *testing.T) {
	withDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/health" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok", "blocked": true}`))
	})

	var health struct {
		Status  string `json:"status"`
		Blocked bool   `json:"blocked"`
	}
	if err := apiGet("/health", &health); err != nil {
		t.Fatalf("apiGet failed: %v", err)
	}
	if health.Status != "ok" || !health.Blocked {
		t.Errorf("Unexpected decode result %+v", health)
	}
}

func TestAPIPost_SendsJSONAndDiscardsBody(t *testing.T) {
	withDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected JSON content type, got %q", got)
		}
		var payload map[string]int
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["issue_number"] != 7 {
			t.Errorf("Unexpected payload %v", payload)
		}
		w.Write([]byte(`{"status": "merged"}`))
	})

	if err := apiPost("/prs/merged", map[string]int{"issue_number": 7}, nil); err != nil {
		t.Fatalf("apiPost failed: %v", err)
	}
}

func TestDaemonError_CarriesStatusAndBody(t *testing.T) {
	withDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "work item not found", http.StatusNotFound)
	})

	err := apiPost("/work/complete", map[string]int{"issue_number": 1}, nil)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}
	var de *daemonError
	if !errors.As(err, &de) {
		t.Fatalf("Expected daemonError, got %T: %v", err, err)
	}
	if de.status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", de.status)
	}
	if !strings.Contains(err.Error(), "work item not found") {
		t.Errorf("Error should carry the response body, got %q", err.Error())
	}
}

func TestAPIGet_DaemonUnreachable(t *testing.T) {
	prev := apiAddr
	apiAddr = "http://127.0.0.1:1"
	t.Cleanup(func() { apiAddr = prev })

	err := apiGet("/health", nil)
	if err == nil {
		t.Fatal("Expected error when the daemon is unreachable")
	}
	if !strings.Contains(err.Error(), "daemon unreachable") {
		t.Errorf("Error should name the daemon address problem, got %q", err.Error())
	}
}
