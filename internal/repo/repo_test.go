package repo

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/auth_service/internal/models"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Role{}, &models.RefreshToken{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return db
}

func seedRoles(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, NewUserRepo(db).SeedRoles(context.Background()))
}
