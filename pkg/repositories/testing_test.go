package repositories

import (
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ekaya-inc/survey-engine/pkg/database"
)

// newTestDB opens a private in-memory local store with all tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenLocal(&database.LocalConfig{Path: ":memory:"}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
