package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"threatforge/internal/assembler"
	"threatforge/internal/llmclient"
	"threatforge/internal/orchestrator"
	"threatforge/internal/repository/modelstore"
	"threatforge/internal/storage"
	"threatforge/internal/threatmodel"
)

const wireResponse = `{
	"threats": [{
		"title": "Credential stuffing",
		"description": "Replayed leaked credentials against the login endpoint.",
		"category": "spoofing",
		"likelihood": 4,
		"impact": 4
	}],
	"summary": "One high finding.",
	"recommendations": []
}`

func newTestServer(t *testing.T) (*httptest.Server, *modelstore.Store) {
	t.Helper()
	store := modelstore.New()
	hub := NewProgressHub()
	svc := orchestrator.New(store, assembler.New(storage.NewMemoryStore()), llmclient.NewFakeProvider(wireResponse), orchestrator.Options{
		Notifier: hub.Publish,
	})
	mux := http.NewServeMux()
	New(svc, hub).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, store
}

func seedModel(t *testing.T, store *modelstore.Store, id string) {
	t.Helper()
	err := store.PutThreatModel(context.Background(), threatmodel.ThreatModel{
		ID:                id,
		Title:             "checkout service",
		SystemDescription: "Public HTTP API with a session store.",
	})
	if err != nil {
		t.Fatalf("PutThreatModel() error = %v", err)
	}
}

func postGenerate(t *testing.T, ts *httptest.Server, id string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/threat-models/"+id+"/generate", "application/json", nil)
	if err != nil {
		t.Fatalf("POST generate: %v", err)
	}
	return resp
}

func pollStatus(t *testing.T, ts *httptest.Server, id string) orchestrator.GenerationStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/threat-models/" + id + "/generation")
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		var st orchestrator.GenerationStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		resp.Body.Close()
		if st.Status == threatmodel.StatusCompleted || st.Status == threatmodel.StatusFailed {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("generation %s did not finish", id)
	return orchestrator.GenerationStatus{}
}

func TestGenerateEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	seedModel(t, store, "tm-1")

	resp := postGenerate(t, ts, "tm-1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	st := pollStatus(t, ts, "tm-1")
	if st.Status != threatmodel.StatusCompleted {
		t.Fatalf("terminal status = %q (error %q)", st.Status, st.Error)
	}
	if st.Progress != 100 || st.ThreatCount != 1 {
		t.Fatalf("progress = %d, threats = %d", st.Progress, st.ThreatCount)
	}
}

func TestGenerateEndpointNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postGenerate(t, ts, "missing")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGenerateEndpointConflict(t *testing.T) {
	ts, store := newTestServer(t)
	seedModel(t, store, "tm-1")
	// Force the conflict deterministically instead of racing the worker.
	if err := store.BeginGeneration(context.Background(), "tm-1", time.Now()); err != nil {
		t.Fatalf("BeginGeneration() error = %v", err)
	}

	resp := postGenerate(t, ts, "tm-1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestStatusEndpointNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/threat-models/missing/generation")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGenerationWSStreamsProgress(t *testing.T) {
	ts, store := newTestServer(t)
	seedModel(t, store, "tm-1")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/generation?threat_model_id=tm-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	resp := postGenerate(t, ts, "tm-1")
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Status   threatmodel.Status `json:"status"`
			Progress int                `json:"progress"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ws read: %v", err)
		}
		if msg.Status == threatmodel.StatusCompleted && msg.Progress == 100 {
			return
		}
	}
}

func TestGenerationWSRequiresID(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/ws/generation")
	if err != nil {
		t.Fatalf("GET ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
