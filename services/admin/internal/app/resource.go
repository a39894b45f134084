package app

import (
	"context"
	"encoding/json"
	"fmt"

	"tobiascms/pkg/asset"
	"tobiascms/pkg/domain"
	"tobiascms/pkg/sync"
)

// Resource is the type-erased HTTP-facing view of one collection
// synchronizer, so the server can route by table name without knowing
// the record type.
type Resource struct {
	Table  string
	List   func() any
	Add    func(ctx context.Context, payload []byte, file *asset.File) (any, error)
	Update func(ctx context.Context, id string, patch map[string]any, file *asset.File) (any, error)
	Delete func(ctx context.Context, id string) error
	State  func() sync.ConnectionState
}

func newResource[T domain.Entity](s *sync.Synchronizer[T], b *sync.Bridge) *Resource {
	return &Resource{
		Table: s.Table(),
		List:  func() any { return s.Collection().Snapshot() },
		Add: func(ctx context.Context, payload []byte, file *asset.File) (any, error) {
			var rec T
			if err := json.Unmarshal(payload, &rec); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
			return s.Add(ctx, rec, file)
		},
		Update: func(ctx context.Context, id string, patch map[string]any, file *asset.File) (any, error) {
			return s.Update(ctx, id, patch, file)
		},
		Delete: s.Delete,
		State:  b.State,
	}
}

// Document is the type-erased view of one singleton synchronizer.
type Document struct {
	Table string
	Get   func() (any, bool)
	Save  func(ctx context.Context, patch map[string]any, file *asset.File) (any, error)
	State func() sync.ConnectionState
}

func newDocument[T domain.Entity](s *sync.Singleton[T], b *sync.Bridge) *Document {
	return &Document{
		Table: s.Table(),
		Get: func() (any, bool) {
			v, ok := s.Value()
			return v, ok
		},
		Save: func(ctx context.Context, patch map[string]any, file *asset.File) (any, error) {
			return s.Save(ctx, patch, file)
		},
		State: b.State,
	}
}
