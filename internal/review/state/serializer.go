// Package state implements the durable checkpoint layer from spec.md §4.4
// and §4.7: a JSON serializer for per-phase payloads and a file-backed
// Checkpoint Store with atomic writes and topic-keyed discovery.
package state

import "encoding/json"

// Serializer converts an in-memory phase payload to and from its durable
// JSON representation. A full round trip (Marshal then Unmarshal into the
// same Go type) must preserve every domain-observable field; unknown fields
// present in stored data are tolerated on read, per spec.md §4.4.
type Serializer interface {
	Marshal(payload any) ([]byte, error)
	Unmarshal(data []byte, out any) error
}

// JSONSerializer is the default Serializer, backed by encoding/json.
// json.Unmarshal already ignores fields absent from the destination struct,
// which is what gives phase payloads forward-compatible schema evolution
// without any extra bookkeeping here. Fields a type does not model are
// dropped on read, not preserved; review.Paper's Extra map round-trips only
// what is stored under its "extra" key.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(payload any) ([]byte, error) {
	return json.MarshalIndent(payload, "", "  ")
}

func (JSONSerializer) Unmarshal(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
