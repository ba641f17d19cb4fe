package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	"image-processor-go/internal/platform/storage"
)

func sampleSession(id string) session.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return session.Session{
		ID:    id,
		Stage: session.StageProcess,
		Image: &domainimage.Image{
			Bytes:  []byte{0x89, 0x50, 0x4E, 0x47},
			Format: "png",
			Width:  2,
			Height: 2,
			Size:   4,
			Source: domainimage.SourceUpload,
		},
		Prompt:    "what is this?",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// exerciseStore checks the behaviour every driver must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !stderrors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}

	sess := sampleSession("sess-1")
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Stage != session.StageProcess || got.Prompt != sess.Prompt {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Image == nil || string(got.Image.Bytes) != string(sess.Image.Bytes) || got.Image.Format != "png" {
		t.Fatalf("image not round-tripped: %+v", got.Image)
	}

	// overwrite
	got.Stage = session.StageResult
	got.Response = "A tiny image."
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("Save overwrite error: %v", err)
	}
	again, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get after overwrite error: %v", err)
	}
	if again.Stage != session.StageResult || again.Response != "A tiny image." {
		t.Fatalf("overwrite not visible: %+v", again)
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(ids) != 1 || ids[0] != sess.ID {
		t.Fatalf("unexpected ids: %v", ids)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["type"] == nil {
		t.Fatalf("stats missing type: %v", stats)
	}

	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Get(ctx, sess.ID); !stderrors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := s.Save(ctx, session.Session{}); err == nil {
		t.Fatalf("expected error saving session without id")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory(Config{TTL: time.Minute, Memory: &MemoryConfig{GCInterval: 10 * time.Millisecond}})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	exerciseStore(t, s)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Config{TTL: 30 * time.Millisecond, Memory: &MemoryConfig{GCInterval: 10 * time.Millisecond}})
	t.Cleanup(func() { _ = s.Close(ctx) })

	if err := s.Save(ctx, sampleSession("short")); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	if _, err := s.Get(ctx, "short"); !stderrors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	stats, _ := s.Stats(ctx)
	if stats["total"].(int) != 0 {
		t.Fatalf("expected gc loop to drop expired entry, stats=%v", stats)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Config{TTL: time.Minute})
	t.Cleanup(func() { _ = s.Close(ctx) })

	sess := sampleSession("copy")
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, _ := s.Get(ctx, "copy")
	got.Image.Format = "jpeg"

	again, _ := s.Get(ctx, "copy")
	if again.Image.Format != "png" {
		t.Fatalf("stored session was mutated through a returned copy")
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := NewRedis(Config{TTL: time.Minute, Redis: &RedisConfig{Addr: mr.Addr()}})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	exerciseStore(t, s)

	if err := s.Save(context.Background(), sampleSession("ttl")); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !mr.Exists("image-processor:session:ttl") {
		t.Fatalf("expected prefixed key in redis")
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(context.Background(), "ttl"); !stderrors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected key to expire, got %v", err)
	}
}

func TestRedisStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedis(Config{}); err == nil {
		t.Fatalf("expected error without redis config")
	}
	if _, err := NewRedis(Config{Redis: &RedisConfig{}}); err == nil {
		t.Fatalf("expected error without redis addr")
	}
}

func newTestDB(t *testing.T) Dependencies {
	t.Helper()
	db, err := storage.Open(fmt.Sprintf("file:session-store-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })
	return Dependencies{SQLiteDB: db}
}

func TestSQLiteStore(t *testing.T) {
	deps := newTestDB(t)
	s, err := NewSQLite(deps.SQLiteDB, Config{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}
	exerciseStore(t, s)
}

func TestSQLiteStoreExpiry(t *testing.T) {
	ctx := context.Background()
	deps := newTestDB(t)
	s, err := NewSQLite(deps.SQLiteDB, Config{TTL: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}

	if err := s.Save(ctx, sampleSession("old")); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := s.Get(ctx, "old"); !stderrors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if err := s.CleanupExpired(ctx); err != nil {
		t.Fatalf("CleanupExpired error: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["total"].(int64) != 0 {
		t.Fatalf("expected expired row removed, stats=%v", stats)
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	s, err := New(Config{}, Dependencies{})
	if err != nil {
		t.Fatalf("default driver error: %v", err)
	}
	_ = s.Close(ctx)

	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatalf("expected sqlite driver to require a database")
	}
	if _, err := New(Config{Driver: "etcd"}, Dependencies{}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}

	deps := newTestDB(t)
	s, err = New(Config{Driver: DriverSQLite}, deps)
	if err != nil {
		t.Fatalf("sqlite driver error: %v", err)
	}
	_ = s.Close(ctx)
}
