/*
 * api/types.go
 *
 * The wire shapes served over /api/v1/workload and /api/v1/workload_stream.
 * These compose the generic store.Entry/store.Event with sbom.State's own
 * tagged-variant JSON, rather than teaching the store package anything
 * domain-specific.
 */

package api

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ctron/bommer/sbom"
	"github.com/ctron/bommer/store"
	"github.com/ctron/bommer/workload"
)

// Image is the per-image-ref wire record: the pods currently referencing it
// and its SBOM resolution state.
type Image struct {
	Pods []workload.PodRef `json:"pods"`
	Sbom sbom.State        `json:"sbom"`
}

func imageFromEntry(entry store.Entry[workload.PodRef, sbom.State]) Image {
	pods := make([]workload.PodRef, 0, len(entry.Owners))
	for owner := range entry.Owners {
		pods = append(pods, owner)
	}
	sort.Slice(pods, func(i, j int) bool {
		if pods[i].Namespace != pods[j].Namespace {
			return pods[i].Namespace < pods[j].Namespace
		}
		return pods[i].Name < pods[j].Name
	})
	return Image{Pods: pods, Sbom: entry.State}
}

func entryFromImage(img Image) store.Entry[workload.PodRef, sbom.State] {
	owners := make(map[workload.PodRef]struct{}, len(img.Pods))
	for _, pod := range img.Pods {
		owners[pod] = struct{}{}
	}
	return store.Entry[workload.PodRef, sbom.State]{Owners: owners, State: img.Sbom}
}

// WireEvent adapts a store.Event[string, workload.PodRef, sbom.State] into
// the tagged JSON shape the stream endpoint publishes:
// {"added":[key,image]} | {"modified":[key,image]} | {"removed":key} | {"restart":{key:image,...}}
type WireEvent struct {
	Event store.Event[string, workload.PodRef, sbom.State]
}

func (w WireEvent) MarshalJSON() ([]byte, error) {
	switch w.Event.Kind {
	case store.Added:
		return json.Marshal(map[string]any{"added": []any{w.Event.Key, imageFromEntry(w.Event.Entry)}})
	case store.Modified:
		return json.Marshal(map[string]any{"modified": []any{w.Event.Key, imageFromEntry(w.Event.Entry)}})
	case store.Removed:
		return json.Marshal(map[string]any{"removed": w.Event.Key})
	case store.Restart:
		images := make(map[string]Image, len(w.Event.Snapshot))
		for key, entry := range w.Event.Snapshot {
			images[key] = imageFromEntry(entry)
		}
		return json.Marshal(map[string]any{"restart": images})
	default:
		return nil, fmt.Errorf("api: unknown event kind %v", w.Event.Kind)
	}
}

func (w *WireEvent) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if raw, ok := obj["added"]; ok {
		key, img, err := unmarshalPair(raw)
		if err != nil {
			return err
		}
		w.Event = store.Event[string, workload.PodRef, sbom.State]{Kind: store.Added, Key: key, Entry: entryFromImage(img)}
		return nil
	}

	if raw, ok := obj["modified"]; ok {
		key, img, err := unmarshalPair(raw)
		if err != nil {
			return err
		}
		w.Event = store.Event[string, workload.PodRef, sbom.State]{Kind: store.Modified, Key: key, Entry: entryFromImage(img)}
		return nil
	}

	if raw, ok := obj["removed"]; ok {
		var key string
		if err := json.Unmarshal(raw, &key); err != nil {
			return err
		}
		w.Event = store.Event[string, workload.PodRef, sbom.State]{Kind: store.Removed, Key: key}
		return nil
	}

	if raw, ok := obj["restart"]; ok {
		var images map[string]Image
		if err := json.Unmarshal(raw, &images); err != nil {
			return err
		}
		snapshot := make(map[string]store.Entry[workload.PodRef, sbom.State], len(images))
		for key, img := range images {
			snapshot[key] = entryFromImage(img)
		}
		w.Event = store.Event[string, workload.PodRef, sbom.State]{Kind: store.Restart, Snapshot: snapshot}
		return nil
	}

	return fmt.Errorf("api: unrecognized event payload")
}

func unmarshalPair(raw json.RawMessage) (string, Image, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return "", Image{}, err
	}
	if len(pair) != 2 {
		return "", Image{}, fmt.Errorf("api: malformed event pair")
	}
	var key string
	if err := json.Unmarshal(pair[0], &key); err != nil {
		return "", Image{}, err
	}
	var img Image
	if err := json.Unmarshal(pair[1], &img); err != nil {
		return "", Image{}, err
	}
	return key, img, nil
}
