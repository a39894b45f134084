package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tobiascms/internal/util"
	"tobiascms/pkg/asset"
	"tobiascms/pkg/channel"
	"tobiascms/pkg/domain"
	"tobiascms/pkg/storage"
	"tobiascms/pkg/store"
)

// Synchronizer orchestrates optimistic CRUD for one list-typed table:
// the local mutation is applied before any network round trip, the
// persistence (including asset upload) runs afterwards, and the
// optimistic entry is either reconciled with the authoritative result
// or rolled back to the ledger snapshot.
type Synchronizer[T domain.Entity] struct {
	table  string
	bucket string

	collection *Collection[T]
	ledger     *Ledger[T]
	records    store.RecordStore
	blobs      storage.BlobStore
	assets     *asset.Pipeline
	logger     *slog.Logger
}

// NewSynchronizer wires a synchronizer for one table. bucket names the
// blob store bucket holding the table's media.
func NewSynchronizer[T domain.Entity](table, bucket string, records store.RecordStore, blobs storage.BlobStore, assets *asset.Pipeline) *Synchronizer[T] {
	return &Synchronizer[T]{
		table:      table,
		bucket:     bucket,
		collection: NewCollection[T](),
		ledger:     NewLedger[T](),
		records:    records,
		blobs:      blobs,
		assets:     assets,
		logger:     slog.Default().With("table", table),
	}
}

// Collection exposes the in-memory state for snapshots and listeners.
func (s *Synchronizer[T]) Collection() *Collection[T] { return s.collection }

// Table returns the table name this synchronizer owns.
func (s *Synchronizer[T]) Table() string { return s.table }

// Load rebuilds the collection from the record store. Called once at
// session start, before the change bridge subscribes.
func (s *Synchronizer[T]) Load(ctx context.Context) error {
	rows, err := s.records.List(ctx, s.table)
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrPersistence, s.table, err)
	}
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		rec, err := fromFields[T](row)
		if err != nil {
			s.logger.Warn("skip undecodable record", "err", err)
			continue
		}
		items = append(items, rec)
	}
	s.collection.Replace(items)
	return nil
}

// Add creates a record, optimistically visible under its final id
// before persistence completes. The id is fixed client-side at
// creation, so no id reconciliation is needed on success.
func (s *Synchronizer[T]) Add(ctx context.Context, payload T, file *asset.File) (T, error) {
	var zero T
	tempID := util.NewID()
	if err := s.ledger.Begin(tempID, OpAdd, nil, -1); err != nil {
		return zero, err
	}

	fields, err := toFields(payload)
	if err != nil {
		s.ledger.End(tempID)
		return zero, err
	}
	fields["id"] = tempID

	var handle *asset.Handle
	if file != nil {
		handle, err = s.assets.Prepare(file)
		if err != nil {
			s.ledger.End(tempID)
			return zero, err
		}
		fields["url"] = handle.URL
		fields["type"] = string(handle.Kind)
	}

	provisional, err := fromFields[T](fields)
	if err != nil {
		handle.Release()
		s.ledger.End(tempID)
		return zero, err
	}
	// Optimistic splice: visible before any suspension point.
	s.collection.Upsert(provisional)

	rollback := func() {
		s.collection.Remove(tempID)
		handle.Release()
		s.ledger.End(tempID)
	}

	if file != nil {
		url, kind, err := s.assets.Commit(ctx, file, s.bucket, tempID)
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

	s.collection.Upsert(rec)
	handle.Release()
	s.ledger.End(tempID)
	return rec, nil
}

// Update shallow-merges patch over the current record, optimistically
// replaces it, then persists. When a new file supersedes an existing
// asset, the old blob is deleted only after the record is durably
// persisted, so the record never references a deleted asset.
func (s *Synchronizer[T]) Update(ctx context.Context, id string, patch map[string]any, file *asset.File) (T, error) {
	var zero T
	current, index, ok := s.collection.Get(id)
	if !ok {
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, s.table, id)
	}
	if err := s.ledger.Begin(id, OpUpdate, &current, index); err != nil {
		return zero, err
	}

	currentFields, err := toFields(current)
	if err != nil {
		s.ledger.End(id)
		return zero, err
	}
	fields := mergeFields(currentFields, patch)
	fields["id"] = id

	var handle *asset.Handle
	if file != nil {
		handle, err = s.assets.Prepare(file)
		if err != nil {
			s.ledger.End(id)
			return zero, err
		}
		fields["url"] = handle.URL
		fields["type"] = string(handle.Kind)
	}

	optimistic, err := fromFields[T](fields)
	if err != nil {
		handle.Release()
		s.ledger.End(id)
		return zero, err
	}
	s.collection.Upsert(optimistic)

	rollback := func() {
		if snapshot, _, ok := s.ledger.SnapshotOf(id); ok && snapshot != nil {
			s.collection.Upsert(*snapshot)
		}
		handle.Release()
		s.ledger.End(id)
	}

	if file != nil {
		url, kind, err := s.assets.Commit(ctx, file, s.bucket, id)
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

	s.collection.Upsert(rec)
	if file != nil {
		if oldURL, _ := current.AssetRef(); oldURL != "" {
			s.deleteBlob(ctx, oldURL)
		}
	}
	handle.Release()
	s.ledger.End(id)
	return rec, nil
}

// Delete removes the record optimistically, deletes the associated
// blob best-effort, then deletes the record from the store. A failed
// record delete re-inserts the snapshot at its original position.
func (s *Synchronizer[T]) Delete(ctx context.Context, id string) error {
	current, index, ok := s.collection.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, s.table, id)
	}
	if err := s.ledger.Begin(id, OpDelete, &current, index); err != nil {
		return err
	}
	s.collection.Remove(id)

	// A partially failed asset delete is less harmful than resurrecting
	// a record the user already dismissed, so blob removal never blocks
	// or reverses the record deletion.
	if url, _ := current.AssetRef(); url != "" {
		s.deleteBlob(ctx, url)
	}

	if err := s.records.Delete(ctx, s.table, id); err != nil {
		if snapshot, index, ok := s.ledger.SnapshotOf(id); ok && snapshot != nil {
			s.collection.InsertAt(index, *snapshot)
		}
		s.ledger.End(id)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.ledger.End(id)
	return nil
}

// ApplyRemote folds a change event from another session (or this
// session's own echo) into the collection. Merge is idempotent by id,
// and a pending local operation on the same id always wins until it
// resolves. Malformed events are dropped, never surfaced.
func (s *Synchronizer[T]) ApplyRemote(ev channel.Event) {
	switch ev.Type {
	case channel.EventInsert, channel.EventUpdate:
		id, _ := ev.New["id"].(string)
		if id == "" {
			s.logger.Warn("drop change event without id", "type", ev.Type)
			return
		}
		if s.ledger.IsPending(id) {
			return
		}
		if _, _, exists := s.collection.Get(id); exists && ev.Type == channel.EventInsert {
			// Duplicate delivery or self-echo of a completed add.
			return
		}
		rec, err := fromFields[T](ev.New)
		if err != nil {
			s.logger.Warn("drop undecodable change event", "type", ev.Type, "id", id, "err", err)
			return
		}
		s.collection.Upsert(rec)
	case channel.EventDelete:
		if ev.Old == nil || ev.Old.ID == "" {
			s.logger.Warn("drop delete event without id")
			return
		}
		if s.ledger.IsPending(ev.Old.ID) {
			return
		}
		s.collection.Remove(ev.Old.ID)
	default:
		s.logger.Warn("drop change event of unknown type", "type", ev.Type)
	}
}

// deleteBlob removes the blob behind a durable URL, best-effort.
func (s *Synchronizer[T]) deleteBlob(ctx context.Context, url string) {
	path, ok := blobPath(url, s.bucket)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, s.bucket, path); err != nil {
		s.logger.Warn("blob delete failed", "url", url, "err", err)
	}
}

// blobPath extracts the object path from a public URL. Temporary
// mem:// previews have no blob behind them.
func blobPath(url, bucket string) (string, bool) {
	marker := "/" + bucket + "/"
	i := strings.Index(url, marker)
	if i < 0 {
		return "", false
	}
	return url[i+len(marker):], true
}
