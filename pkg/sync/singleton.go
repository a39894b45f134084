package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"tobiascms/pkg/asset"
	"tobiascms/pkg/channel"
	"tobiascms/pkg/domain"
	"tobiascms/pkg/storage"
	"tobiascms/pkg/store"
)

// Singleton applies the optimistic -> persist -> reconcile -> rollback
// contract to a table holding exactly one logical document under a
// fixed, well-known id. There is no add or delete; the first Save acts
// as an implicit create through the store's upsert semantics.
type Singleton[T domain.Entity] struct {
	table  string
	bucket string
	id     string

	mu     gosync.RWMutex
	value  T
	exists bool

	ledger    *Ledger[T]
	records   store.RecordStore
	blobs     storage.BlobStore
	assets    *asset.Pipeline
	logger    *slog.Logger
	listeners map[int]func(T)
	nextID    int
}

// NewSingleton wires a singleton synchronizer for one table and its
// fixed record id.
func NewSingleton[T domain.Entity](table, bucket, id string, records store.RecordStore, blobs storage.BlobStore, assets *asset.Pipeline) *Singleton[T] {
	return &Singleton[T]{
		table:     table,
		bucket:    bucket,
		id:        id,
		ledger:    NewLedger[T](),
		records:   records,
		blobs:     blobs,
		assets:    assets,
		logger:    slog.Default().With("table", table),
		listeners: make(map[int]func(T)),
	}
}

// Table returns the table name this singleton owns.
func (s *Singleton[T]) Table() string { return s.table }

// Load rebuilds the document from the record store.
func (s *Singleton[T]) Load(ctx context.Context) error {
	rows, err := s.records.List(ctx, s.table)
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrPersistence, s.table, err)
	}
	for _, row := range rows {
		if rid, _ := row["id"].(string); rid != s.id {
			continue
		}
		rec, err := fromFields[T](row)
		if err != nil {
			s.logger.Warn("skip undecodable singleton record", "err", err)
			continue
		}
		s.set(rec)
		return nil
	}
	return nil
}

// Value returns the current document and whether one exists yet.
func (s *Singleton[T]) Value() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.exists
}

// Save shallow-merges patch over the current document, replaces it
// optimistically, and persists in the background. On failure the prior
// document is restored before the error is returned.
func (s *Singleton[T]) Save(ctx context.Context, patch map[string]any, file *asset.File) (T, error) {
	var zero T
	current, hadValue := s.Value()
	if err := s.ledger.Begin(s.id, OpUpdate, &current, -1); err != nil {
		return zero, err
	}

	currentFields := store.Fields{}
	if hadValue {
		var err error
		currentFields, err = toFields(current)
		if err != nil {
			s.ledger.End(s.id)
			return zero, err
		}
	}
	fields := mergeFields(currentFields, patch)
	fields["id"] = s.id

	var handle *asset.Handle
	if file != nil {
		var err error
		handle, err = s.assets.Prepare(file)
		if err != nil {
			s.ledger.End(s.id)
			return zero, err
		}
		fields["url"] = handle.URL
		fields["type"] = string(handle.Kind)
	}

	optimistic, err := fromFields[T](fields)
	if err != nil {
		handle.Release()
		s.ledger.End(s.id)
		return zero, err
	}
	s.set(optimistic)

	rollback := func() {
		if hadValue {
			s.set(current)
		} else {
			s.clear()
		}
		handle.Release()
		s.ledger.End(s.id)
	}

	if file != nil {
		url, kind, err := s.assets.Commit(ctx, file, s.bucket, s.id)
		if err != nil {
			rollback()
			return zero, fmt.Errorf("%w: %w", ErrAssetUpload, err)
		}
		fields["url"] = url
		fields["type"] = string(kind)
	}

	authoritative, err := s.records.Upsert(ctx, s.table, fields)
	if err != nil {
		rollback()
		return zero, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	rec, err := fromFields[T](authoritative)
	if err != nil {
		rollback()
		return zero, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.set(rec)
	if file != nil && hadValue {
		if oldURL, _ := current.AssetRef(); oldURL != "" {
			s.deleteBlob(ctx, oldURL)
		}
	}
	handle.Release()
	s.ledger.End(s.id)
	return rec, nil
}

// ApplyRemote folds a change event into the document, with the same
// pending-operation precedence as the collection bridge. A remote
// delete clears the document; the next Save recreates it.
func (s *Singleton[T]) ApplyRemote(ev channel.Event) {
	switch ev.Type {
	case channel.EventInsert, channel.EventUpdate:
		id, _ := ev.New["id"].(string)
		if id != s.id {
			return
		}
		if s.ledger.IsPending(s.id) {
			return
		}
		rec, err := fromFields[T](ev.New)
		if err != nil {
			s.logger.Warn("drop undecodable change event", "type", ev.Type, "err", err)
			return
		}
		s.set(rec)
	case channel.EventDelete:
		if ev.Old == nil || ev.Old.ID != s.id {
			return
		}
		if s.ledger.IsPending(s.id) {
			return
		}
		s.clear()
	default:
		s.logger.Warn("drop change event of unknown type", "type", ev.Type)
	}
}

// Subscribe registers a document listener; the returned function
// unsubscribes it.
func (s *Singleton[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Singleton[T]) set(rec T) {
	s.mu.Lock()
	s.value = rec
	s.exists = true
	fns := make([]func(T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(rec)
	}
}

func (s *Singleton[T]) clear() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.exists = false
	s.mu.Unlock()
}

func (s *Singleton[T]) deleteBlob(ctx context.Context, url string) {
	path, ok := blobPath(url, s.bucket)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, s.bucket, path); err != nil {
		s.logger.Warn("blob delete failed", "url", url, "err", err)
	}
}
