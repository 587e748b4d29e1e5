package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/pkg/logging"
)

func TestReaper_Sweep(t *testing.T) {
	svc, db := initTestService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Tokens.Save(ctx, fmt.Sprintf("dead-%d", i), 1)
		require.NoError(t, err)
		_, err = svc.Tokens.Invalidate(ctx, fmt.Sprintf("dead-%d", i))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := svc.Tokens.Save(ctx, fmt.Sprintf("live-%d", i), 1)
		require.NoError(t, err)
	}

	reaper := NewReaper(svc.Tokens, time.Hour, logging.New("error"))
	reaper.Sweep(ctx)

	var remaining []models.RefreshToken
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 3)
	for _, row := range remaining {
		assert.False(t, row.Invalidated)
	}
}

func TestReaper_StartStop(t *testing.T) {
	svc, db := initTestService(t)
	ctx := context.Background()

	_, err := svc.Tokens.Save(ctx, "dead-0", 1)
	require.NoError(t, err)
	_, err = svc.Tokens.Invalidate(ctx, "dead-0")
	require.NoError(t, err)

	reaper := NewReaper(svc.Tokens, 10*time.Millisecond, logging.New("error"))
	reaper.Start()

	require.Eventually(t, func() bool {
		var count int64
		if err := db.Model(&models.RefreshToken{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Stop must return, not hang on the sweep goroutine
	done := make(chan struct{})
	go func() {
		reaper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
