// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SchemaVersion is the envelope version written by Encode.
const SchemaVersion = 1

var (
	// ErrCorrupt marks a snapshot that is not valid JSON or fails its schema.
	ErrCorrupt = errors.New("persist: corrupt snapshot")

	// ErrVersion marks a snapshot written by an unknown envelope version.
	ErrVersion = errors.New("persist: unsupported snapshot version")
)

type envelope struct {
	Version int             `json:"version"`
	Kind    Kind            `json:"kind"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps v in a versioned envelope for kind.
func Encode(kind Kind, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", kind, err)
	}
	return json.Marshal(envelope{
		Version: SchemaVersion,
		Kind:    kind,
		SavedAt: time.Now().UTC(),
		Data:    data,
	})
}

// Decode unwraps an envelope written by Encode and validates it against the
// schema for kind before unmarshaling the payload into T.
func Decode[T any](kind Kind, raw []byte) (T, error) {
	var zero T

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != SchemaVersion {
		return zero, fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}
	if env.Kind != kind {
		return zero, fmt.Errorf("%w: kind %q, want %q", ErrCorrupt, env.Kind, kind)
	}

	schema, err := schemaFor(kind)
	if err != nil {
		return zero, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := schema.Validate(doc); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return v, nil
}

// Snapshot loads and saves one kind of payload through a Backend.
// A nil Snapshot or a Snapshot without a backend does nothing.
type Snapshot[T any] struct {
	backend Backend
	kind    Kind
	logger  *zap.Logger
}

// NewSnapshot binds kind to backend.
func NewSnapshot[T any](backend Backend, kind Kind, logger *zap.Logger) *Snapshot[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshot[T]{backend: backend, kind: kind, logger: logger}
}

// Load returns the stored payload. ok is false when nothing was stored or
// the stored snapshot could not be read; unreadable snapshots are logged.
func (s *Snapshot[T]) Load(ctx context.Context) (v T, ok bool) {
	if s == nil || s.backend == nil {
		return v, false
	}
	raw, err := s.backend.Load(ctx, string(s.kind))
	if errors.Is(err, ErrNotFound) {
		return v, false
	}
	if err != nil {
		s.logger.Warn("snapshot load failed", zap.String("kind", string(s.kind)), zap.Error(err))
		return v, false
	}
	v, err = Decode[T](s.kind, raw)
	if err != nil {
		s.logger.Warn("discarding unreadable snapshot", zap.String("kind", string(s.kind)), zap.Error(err))
		return v, false
	}
	return v, true
}

// Save writes v under the snapshot's key.
func (s *Snapshot[T]) Save(ctx context.Context, v T) error {
	if s == nil || s.backend == nil {
		return nil
	}
	data, err := Encode(s.kind, v)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, string(s.kind), data)
}

// Clear removes the stored snapshot.
func (s *Snapshot[T]) Clear(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Delete(ctx, string(s.kind))
}
