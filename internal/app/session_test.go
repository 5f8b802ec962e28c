package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rivwidthcloud/internal/domain"
)

func TestSessionGuard_RenewOncePerGeneration(t *testing.T) {
	refresher := &fakeRefresher{refreshFn: func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}}
	guard := NewSessionGuard(zaptest.NewLogger(t), refresher)
	renewed := 0
	guard.OnRenew = func() { renewed++ }

	seen := guard.Generation()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, guard.Renew(context.Background(), seen))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.Equal(t, 1, renewed)
	assert.EqualValues(t, 1, guard.Generation())

	// устаревшее поколение не вызывает повторного обновления
	require.NoError(t, guard.Renew(context.Background(), seen))
	assert.EqualValues(t, 1, refresher.calls.Load())

	require.NoError(t, guard.Renew(context.Background(), guard.Generation()))
	assert.EqualValues(t, 2, refresher.calls.Load())
}

func TestSessionGuard_RefreshFailure(t *testing.T) {
	boom := errors.New("no credentials")
	guard := NewSessionGuard(zaptest.NewLogger(t), &fakeRefresher{refreshFn: func(context.Context) error { return boom }})

	assert.ErrorIs(t, guard.Renew(context.Background(), 0), boom)
	assert.Zero(t, guard.Generation())
}

func TestSessionGuard_WithoutRefresher(t *testing.T) {
	guard := NewSessionGuard(zaptest.NewLogger(t), nil)

	assert.ErrorIs(t, guard.Renew(context.Background(), 0), domain.ErrSessionExpired)
}
