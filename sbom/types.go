/*
 * sbom/types.go
 *
 * State is the per-image SBOM resolution state, serialized as a tagged
 * variant with camelCase keys matching the HTTP/WebSocket wire format.
 */

package sbom

import (
	"encoding/json"
	"fmt"
)

// Tag discriminates the variants of State.
type Tag int

const (
	Scheduled Tag = iota
	Missing
	Found
	Err
)

// State is `Scheduled | Missing | Found(blob) | Err(message)`. Blob is only
// meaningful when Tag == Found; Message only when Tag == Err.
type State struct {
	Tag     Tag
	Blob    string
	Message string
}

// MarshalJSON renders State as the wire's tagged variant: a bare string for
// Scheduled/Missing, or a single-key object for Found/Err.
func (s State) MarshalJSON() ([]byte, error) {
	switch s.Tag {
	case Scheduled:
		return json.Marshal("scheduled")
	case Missing:
		return json.Marshal("missing")
	case Found:
		return json.Marshal(struct {
			Found struct {
				Data string `json:"data"`
			} `json:"found"`
		}{Found: struct {
			Data string `json:"data"`
		}{Data: s.Blob}})
	case Err:
		return json.Marshal(struct {
			Err string `json:"err"`
		}{Err: s.Message})
	default:
		return nil, fmt.Errorf("sbom: unknown state tag %d", s.Tag)
	}
}

// UnmarshalJSON parses the wire's tagged variant back into a State.
func (s *State) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch tag {
		case "scheduled":
			*s = State{Tag: Scheduled}
			return nil
		case "missing":
			*s = State{Tag: Missing}
			return nil
		default:
			return fmt.Errorf("sbom: unknown state %q", tag)
		}
	}

	var obj struct {
		Err   *string `json:"err"`
		Found *struct {
			Data string `json:"data"`
		} `json:"found"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.Err != nil:
		*s = State{Tag: Err, Message: *obj.Err}
	case obj.Found != nil:
		*s = State{Tag: Found, Blob: obj.Found.Data}
	default:
		return fmt.Errorf("sbom: unrecognized state object")
	}
	return nil
}
