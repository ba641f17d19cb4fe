package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"image-processor-go/internal/domain/session"
	"image-processor-go/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a SQLite-backed session store on an opened database.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		ttl: ttlOrDefault(cfg.TTL),
	}, nil
}

func (s *sqliteStore) Save(ctx context.Context, sess session.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id required")
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	now := time.Now()
	record := &storage.SessionRecord{
		ID:        sess.ID,
		Stage:     string(sess.Stage),
		Payload:   payload,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage", "payload", "expires_at", "updated_at"}),
	}).Create(record).Error
}

func (s *sqliteStore) Get(ctx context.Context, id string) (session.Session, error) {
	var record storage.SessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return session.Session{}, err
	}
	if time.Now().After(record.ExpiresAt) {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	var sess session.Session
	if err := json.Unmarshal(record.Payload, &sess); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&storage.SessionRecord{}).Error
}

func (s *sqliteStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&storage.SessionRecord{}).
		Where("expires_at > ?", time.Now()).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&storage.SessionRecord{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.SessionRecord{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Stage string
		Count int64
	}
	if err := s.db.WithContext(ctx).
		Model(&storage.SessionRecord{}).
		Select("stage, count(*) as count").
		Where("expires_at > ?", time.Now()).
		Group("stage").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	stages := make(map[string]int64, len(rows))
	for _, r := range rows {
		stages[r.Stage] = r.Count
	}

	return map[string]any{
		"type":        "sqlite",
		"total":       total,
		"stages":      stages,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	// The database handle is owned by the caller.
	return nil
}
