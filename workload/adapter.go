/*
 * workload/adapter.go
 *
 * Adapter translates the cluster watcher's Applied/Deleted/Restarted events
 * into Apply/Delete/Reset calls on a store keyed by image id and owned by
 * pod reference, with a unit value.
 */

package workload

import (
	"context"

	"github.com/ctron/bommer/internal/logging"
	"github.com/ctron/bommer/store"
)

// ImageStore is the concrete store instantiation the adapter feeds.
type ImageStore = store.Store[string, PodRef, struct{}]

// Adapter consumes watcher events and reconciles them into an ImageStore.
type Adapter struct {
	store  *ImageStore
	logger logging.Logger
}

// NewAdapter constructs an Adapter writing into s.
func NewAdapter(s *ImageStore, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Adapter{store: s, logger: logger}
}

// Run drains events until the channel closes or ctx is cancelled.
func (a *Adapter) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			a.handle(evt)
		}
	}
}

func (a *Adapter) handle(evt Event) {
	switch evt.Kind {
	case Applied:
		a.apply(evt.Pod)
	case Deleted:
		a.delete(evt.Pod)
	case Restarted:
		a.reset(evt.Pods)
	}
}

func (a *Adapter) apply(pod Pod) {
	ref, ok := podRefFor(pod)
	if !ok {
		a.logger.Warnf("skipping pod with missing namespace or name")
		return
	}
	a.store.Apply(ref, imagesFromPod(pod), initialUnit, onAddUnit)
}

func (a *Adapter) delete(pod Pod) {
	ref, ok := podRefFor(pod)
	if !ok {
		return
	}
	a.store.Delete(ref, onAddUnit)
}

func (a *Adapter) reset(pods []Pod) {
	images := make(map[string]store.Entry[PodRef, struct{}])
	podIndex := make(map[PodRef]map[string]struct{})

	for _, pod := range pods {
		ref, ok := podRefFor(pod)
		if !ok {
			continue
		}
		keys := imagesFromPod(pod)
		if len(keys) == 0 {
			continue
		}
		podIndex[ref] = keys
		for k := range keys {
			entry := images[k]
			if entry.Owners == nil {
				entry.Owners = make(map[PodRef]struct{})
			}
			entry.Owners[ref] = struct{}{}
			images[k] = entry
		}
	}

	a.store.Reset(images, podIndex)
}

// podRefFor returns the pod's PodRef, or false if it lacks a namespace or name.
func podRefFor(pod Pod) (PodRef, bool) {
	if pod.Namespace == "" || pod.Name == "" {
		return PodRef{}, false
	}
	return PodRef{Namespace: pod.Namespace, Name: pod.Name}, true
}

// imagesFromPod unions the non-empty image ids across the pod's containers.
func imagesFromPod(pod Pod) map[string]struct{} {
	out := make(map[string]struct{}, len(pod.ImageIDs))
	for _, id := range pod.ImageIDs {
		if id == "" {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}

func initialUnit(string) struct{}            { return struct{}{} }
func onAddUnit(string, struct{}) struct{}    { return struct{}{} }
