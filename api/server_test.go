package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctron/bommer/sbom"
	"github.com/ctron/bommer/store"
	"github.com/ctron/bommer/workload"
)

func newTestStore() *sbom.Store {
	return store.New[string, workload.PodRef, sbom.State](0, nil)
}

func TestHandleSnapshotReturnsCurrentImages(t *testing.T) {
	enriched := newTestStore()
	pod := workload.PodRef{Namespace: "ns", Name: "pod-a"}
	enriched.Mutate("img@sha256:deadbeef", func(*store.Entry[workload.PodRef, sbom.State]) *store.Entry[workload.PodRef, sbom.State] {
		return &store.Entry[workload.PodRef, sbom.State]{
			Owners: map[workload.PodRef]struct{}{pod: {}},
			State:  sbom.State{Tag: sbom.Found, Blob: "blob"},
		}
	})

	srv := NewServer(enriched, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var decoded map[string]Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Contains(t, decoded, "img@sha256:deadbeef")
	assert.Equal(t, []workload.PodRef{pod}, decoded["img@sha256:deadbeef"].Pods)
	assert.Equal(t, sbom.State{Tag: sbom.Found, Blob: "blob"}, decoded["img@sha256:deadbeef"].Sbom)
}

func TestHandleSnapshotOptionsIsPreflight(t *testing.T) {
	srv := NewServer(newTestStore(), nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/workload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestHandleStreamDeliversRestartThenUpdates(t *testing.T) {
	enriched := newTestStore()
	srv := NewServer(enriched, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/api/v1/workload_stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first WireEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, store.Restart, first.Event.Kind)

	pod := workload.PodRef{Namespace: "ns", Name: "pod-a"}
	enriched.Mutate("img@sha256:deadbeef", func(*store.Entry[workload.PodRef, sbom.State]) *store.Entry[workload.PodRef, sbom.State] {
		return &store.Entry[workload.PodRef, sbom.State]{
			Owners: map[workload.PodRef]struct{}{pod: {}},
			State:  sbom.State{Tag: sbom.Scheduled},
		}
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var second WireEvent
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, store.Added, second.Event.Kind)
	assert.Equal(t, "img@sha256:deadbeef", second.Event.Key)
	assert.Contains(t, second.Event.Entry.Owners, pod)
}
