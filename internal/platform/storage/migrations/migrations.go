package migrations

import "gorm.io/gorm"

// Migration mirrors storage.Migration so this package stays import-free of its parent.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// All returns every migration in application order.
func All() []Migration {
	return []Migration{
		&Migration001Sessions{},
	}
}
