package migrations

import (
	"gorm.io/gorm"
)

// Migration001Sessions 创建会话表与领域事件表
type Migration001Sessions struct{}

func (m *Migration001Sessions) Version() string {
	return "001_sessions"
}

func (m *Migration001Sessions) Description() string {
	return "Create sessions and domain_events tables"
}

func (m *Migration001Sessions) Up(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			stage VARCHAR(16) NOT NULL,
			payload JSON NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_stage ON sessions(stage)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		`CREATE TABLE IF NOT EXISTS domain_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type VARCHAR(255) NOT NULL,
			session_id VARCHAR(255),
			data JSON NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_event_type ON domain_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_session_id ON domain_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_created_at ON domain_events(created_at)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001Sessions) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS domain_events`).Error; err != nil {
		return err
	}
	return db.Exec(`DROP TABLE IF EXISTS sessions`).Error
}
