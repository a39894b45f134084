package sync

import (
	"context"
	"errors"
	"testing"

	"tobiascms/pkg/asset"
	"tobiascms/pkg/channel"
	"tobiascms/pkg/domain"
	"tobiascms/pkg/storage"
	"tobiascms/pkg/store"
)

func newTestSingleton(t *testing.T, rec *hookStore) *Singleton[domain.HeroContent] {
	t.Helper()
	blobs := storage.NewMemoryBlobStore()
	pipe := asset.NewPipeline(asset.Config{}, blobs, asset.NewHandleRegistry())
	return NewSingleton[domain.HeroContent]("hero", "media-hero", domain.HeroID, rec, blobs, pipe)
}

func TestSingletonFirstSaveCreates(t *testing.T) {
	rec := newHookStore()
	s := newTestSingleton(t, rec)

	if _, ok := s.Value(); ok {
		t.Fatal("empty singleton reports a value")
	}
	saved, err := s.Save(context.Background(), map[string]any{"title": "Welcome"}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != domain.HeroID || saved.Title != "Welcome" {
		t.Fatalf("saved document = %+v", saved)
	}
	rows, err := rec.inner.List(context.Background(), "hero")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != domain.HeroID {
		t.Fatalf("stored rows = %+v", rows)
	}
}

func TestSingletonSaveMergesAndRollsBack(t *testing.T) {
	rec := newHookStore()
	s := newTestSingleton(t, rec)
	if _, err := s.Save(context.Background(), map[string]any{"title": "Welcome", "subtitle": "to the studio"}, nil); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	saved, err := s.Save(context.Background(), map[string]any{"title": "Hello"}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Title != "Hello" || saved.Subtitle != "to the studio" {
		t.Fatalf("merged document = %+v", saved)
	}

	rec.upsertErr = errStoreDown
	_, err = s.Save(context.Background(), map[string]any{"title": "Broken"}, nil)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	current, ok := s.Value()
	if !ok || current.Title != "Hello" {
		t.Fatalf("document after rollback = %+v, ok=%v", current, ok)
	}
}

func TestSingletonRollbackToEmpty(t *testing.T) {
	rec := newHookStore()
	rec.upsertErr = errStoreDown
	s := newTestSingleton(t, rec)

	_, err := s.Save(context.Background(), map[string]any{"title": "Welcome"}, nil)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if _, ok := s.Value(); ok {
		t.Fatal("failed first save left a document behind")
	}
}

func TestSingletonLoadPicksOwnID(t *testing.T) {
	rec := newHookStore()
	ctx := context.Background()
	if _, err := rec.inner.Upsert(ctx, "hero", store.Fields{"id": "stray", "title": "wrong"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := rec.inner.Upsert(ctx, "hero", store.Fields{"id": domain.HeroID, "title": "Welcome"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := newTestSingleton(t, rec)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	current, ok := s.Value()
	if !ok || current.Title != "Welcome" {
		t.Fatalf("loaded document = %+v, ok=%v", current, ok)
	}
}

func TestSingletonApplyRemote(t *testing.T) {
	s := newTestSingleton(t, newHookStore())

	s.ApplyRemote(channel.Event{
		Type:  channel.EventInsert,
		Table: "hero",
		New:   store.Fields{"id": domain.HeroID, "title": "Welcome"},
	})
	current, ok := s.Value()
	if !ok || current.Title != "Welcome" {
		t.Fatalf("document after remote insert = %+v, ok=%v", current, ok)
	}

	// Events for other ids in the same table are ignored.
	s.ApplyRemote(channel.Event{
		Type:  channel.EventUpdate,
		Table: "hero",
		New:   store.Fields{"id": "stray", "title": "wrong"},
	})
	if current, _ := s.Value(); current.Title != "Welcome" {
		t.Fatalf("stray event applied: %+v", current)
	}

	s.ApplyRemote(channel.Event{Type: channel.EventDelete, Table: "hero", Old: &channel.Ref{ID: domain.HeroID}})
	if _, ok := s.Value(); ok {
		t.Fatal("document survived remote delete")
	}
}
