/*
 * sbom/worker.go
 *
 * Worker maintains a reactive store keyed by ImageRef with SBOM state,
 * mirroring ownership from the pod adapter's store (Loop A) and scanning
 * Scheduled entries (Loop B): those of a Restart snapshot in parallel, up to
 * ScanConcurrency at a time, those of Added/Modified events one at a time.
 */

package sbom

import (
	"context"
	"time"

	"github.com/ctron/bommer/internal/config"
	"github.com/ctron/bommer/internal/logging"
	"github.com/ctron/bommer/internal/parallel"
	"github.com/ctron/bommer/store"
	"github.com/ctron/bommer/workload"
)

// Store is the concrete store instantiation the worker populates.
type Store = store.Store[string, workload.PodRef, State]

// Worker runs the mirror and scan loops against images and enriched.
type Worker struct {
	images   *workload.ImageStore
	enriched *Store
	client   *Client
	logger   logging.Logger

	scanConcurrency    int
	reSubscribeBackoff time.Duration
}

// NewWorker constructs a Worker. enriched is the store this worker owns and
// mutates; images is the upstream pod-adapter store it mirrors from.
func NewWorker(images *workload.ImageStore, enriched *Store, client *Client, logger logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Worker{
		images:             images,
		enriched:           enriched,
		client:             client,
		logger:             logger,
		scanConcurrency:    config.ScanConcurrency,
		reSubscribeBackoff: config.ReSubscribeBackoff,
	}
}

// Run selects across the mirror and scan loops; either exiting ends the worker.
func (w *Worker) Run(ctx context.Context) error {
	return parallel.RunLimited(ctx, 0, w.mirror, w.scan)
}

// mirror is Loop A: it keeps the enriched store's ownership in sync with the
// pod adapter's store, re-subscribing if its subscription is dropped.
func (w *Worker) mirror(ctx context.Context) error {
	for {
		sub := w.images.Subscribe(config.MirrorSubscriberCapacity)
		closed := w.runMirror(ctx, sub.Events)
		w.images.Unsubscribe(sub.ID)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !closed {
			continue
		}

		w.logger.Warnf("mirror subscription lost, re-subscribing in %s", w.reSubscribeBackoff)
		select {
		case <-time.After(w.reSubscribeBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) runMirror(ctx context.Context, events <-chan store.Event[string, workload.PodRef, struct{}]) (closed bool) {
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return true
			}
			w.applyMirrorEvent(evt)
		}
	}
}

func (w *Worker) applyMirrorEvent(evt store.Event[string, workload.PodRef, struct{}]) {
	switch evt.Kind {
	case store.Added, store.Modified:
		owners := evt.Entry.Owners
		w.enriched.Mutate(evt.Key, func(cur *store.Entry[workload.PodRef, State]) *store.Entry[workload.PodRef, State] {
			next := store.Entry[workload.PodRef, State]{Owners: cloneOwners(owners), State: State{Tag: Scheduled}}
			if cur != nil {
				next.State = cur.State
			}
			return &next
		})

	case store.Removed:
		w.enriched.Mutate(evt.Key, func(*store.Entry[workload.PodRef, State]) *store.Entry[workload.PodRef, State] {
			return nil
		})

	case store.Restart:
		images := make(map[string]store.Entry[workload.PodRef, State], len(evt.Snapshot))
		pods := make(map[workload.PodRef]map[string]struct{})
		for key, entry := range evt.Snapshot {
			images[key] = store.Entry[workload.PodRef, State]{Owners: cloneOwners(entry.Owners), State: State{Tag: Scheduled}}
			for owner := range entry.Owners {
				if pods[owner] == nil {
					pods[owner] = make(map[string]struct{})
				}
				pods[owner][key] = struct{}{}
			}
		}
		w.enriched.Reset(images, pods)
	}
}

// scan is Loop B: it reacts to its own store's events, resolving and
// fetching SBOMs for every Scheduled entry. The Scheduled entries of a Restart
// snapshot are scanned in parallel, at most scanConcurrency at a time; an
// Added or Modified entry is scanned inline before the next event is read.
func (w *Worker) scan(ctx context.Context) error {
	for {
		sub := w.enriched.Subscribe(config.DefaultSubscriberCapacity)
		closed := w.runScan(ctx, sub.Events)
		w.enriched.Unsubscribe(sub.ID)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !closed {
			continue
		}

		w.logger.Warnf("scan subscription lost, re-subscribing in %s", w.reSubscribeBackoff)
		select {
		case <-time.After(w.reSubscribeBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) runScan(ctx context.Context, events <-chan store.Event[string, workload.PodRef, State]) (closed bool) {
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return true
			}
			w.handleScanEvent(ctx, evt)
		}
	}
}

func (w *Worker) handleScanEvent(ctx context.Context, evt store.Event[string, workload.PodRef, State]) {
	switch evt.Kind {
	case store.Added, store.Modified:
		if evt.Entry.State.Tag == Scheduled {
			w.scanOne(ctx, evt.Key)
		}

	case store.Restart:
		var scheduled []string
		for key, entry := range evt.Snapshot {
			if entry.State.Tag == Scheduled {
				scheduled = append(scheduled, key)
			}
		}
		if len(scheduled) == 0 {
			return
		}
		_ = parallel.ForEach(ctx, scheduled, w.scanConcurrency, func(ctx context.Context, key string) error {
			w.scanOne(ctx, key)
			return nil
		})
	}
}

func (w *Worker) scanOne(ctx context.Context, imageRef string) {
	purl, err := ResolvePurl(imageRef)
	if err != nil {
		w.logger.Warnf("%v", err)
		w.writeResult(imageRef, State{Tag: Err, Message: err.Error()})
		return
	}

	blob, err := w.client.Fetch(ctx, purl)
	if err != nil {
		w.logger.Warnf("%v", err)
		w.writeResult(imageRef, State{Tag: Err, Message: err.Error()})
		return
	}

	w.writeResult(imageRef, State{Tag: Found, Blob: blob})
}

// writeResult latches result into the enriched entry, without resurrecting
// an entry that was removed while the fetch was in flight.
func (w *Worker) writeResult(imageRef string, result State) {
	w.enriched.Mutate(imageRef, func(cur *store.Entry[workload.PodRef, State]) *store.Entry[workload.PodRef, State] {
		if cur == nil {
			return nil
		}
		next := store.Entry[workload.PodRef, State]{Owners: cloneOwners(cur.Owners), State: result}
		return &next
	})
}

func cloneOwners(owners map[workload.PodRef]struct{}) map[workload.PodRef]struct{} {
	out := make(map[workload.PodRef]struct{}, len(owners))
	for o := range owners {
		out[o] = struct{}{}
	}
	return out
}
