package sbom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctron/bommer/store"
	"github.com/ctron/bommer/workload"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerScansScheduledEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("sbom-blob"))
	}))
	defer server.Close()

	images := store.New[string, workload.PodRef, struct{}](0, nil)
	enriched := store.New[string, workload.PodRef, State](0, nil)
	client := NewClient(server.URL, time.Second)
	worker := NewWorker(images, enriched, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	pod := workload.PodRef{Namespace: "ns", Name: "pod-a"}
	images.Apply(pod, map[string]struct{}{"registry.io/foo/bar@sha256:deadbeef": {}}, func(string) struct{} { return struct{}{} }, func(string, struct{}) struct{} { return struct{}{} })

	waitFor(t, 2*time.Second, func() bool {
		snap := enriched.Snapshot()
		entry, ok := snap["registry.io/foo/bar@sha256:deadbeef"]
		return ok && entry.State.Tag == Found
	})

	snap := enriched.Snapshot()
	entry := snap["registry.io/foo/bar@sha256:deadbeef"]
	assert.Equal(t, "sbom-blob", entry.State.Blob)
	assert.Contains(t, entry.Owners, pod)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorkerResolutionErrorLatchesErr(t *testing.T) {
	images := store.New[string, workload.PodRef, struct{}](0, nil)
	enriched := store.New[string, workload.PodRef, State](0, nil)
	client := NewClient("http://unused.invalid", time.Second)
	worker := NewWorker(images, enriched, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	pod := workload.PodRef{Namespace: "ns", Name: "pod-a"}
	images.Apply(pod, map[string]struct{}{"no-digest-image": {}}, func(string) struct{} { return struct{}{} }, func(string, struct{}) struct{} { return struct{}{} })

	waitFor(t, time.Second, func() bool {
		snap := enriched.Snapshot()
		entry, ok := snap["no-digest-image"]
		return ok && entry.State.Tag == Err
	})
}

func TestWorkerRemovalDoesNotResurrectEntry(t *testing.T) {
	images := store.New[string, workload.PodRef, struct{}](0, nil)
	enriched := store.New[string, workload.PodRef, State](0, nil)
	worker := NewWorker(images, enriched, NewClient("http://unused.invalid", time.Second), nil)

	imageRef := "registry.io/foo/bar@sha256:deadbeef"
	worker.writeResult(imageRef, State{Tag: Found, Blob: "stale"})

	snap := enriched.Snapshot()
	require.NotContains(t, snap, imageRef)
}
