package handlers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loiht2/getaround-pricing/backend/dashboard"
)

func TestDashboardLoaderWaiterHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int32
	l := NewDashboardLoader(func(context.Context) ([]dashboard.Rental, error) {
		loads.Add(1)
		<-release
		return rentals(), nil
	})

	first := make(chan error, 1)
	go func() {
		_, err := l.Analysis(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := l.Analysis(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, <-first)

	a, err := l.Analysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dashboard.Summary{Cars: 2, Rentals: 3}, a.Summary())
	assert.Equal(t, int32(1), loads.Load())
}

func TestDashboardLoaderRetriesFailedLoad(t *testing.T) {
	var loads atomic.Int32
	l := NewDashboardLoader(func(context.Context) ([]dashboard.Rental, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("bucket unreachable")
		}
		return rentals(), nil
	})

	_, err := l.Analysis(context.Background())
	assert.Error(t, err)

	a, err := l.Analysis(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, a)
	_, err = l.Analysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}
