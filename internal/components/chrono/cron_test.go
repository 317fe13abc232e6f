package chrono

import (
	"context"
	"testing"
	"time"

	"apti-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestStandardSchedulerRunsAndStops(t *testing.T) {
	scheduler := NewStandardScheduler(&telemetry.RecorderAPI{})

	fired := make(chan struct{}, 8)
	err := scheduler.Every(time.Second, func() {
		fired <- struct{}{}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled callback never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))
}

func TestStandardSchedulerRejectsSubSecond(t *testing.T) {
	scheduler := NewStandardScheduler(&telemetry.RecorderAPI{})
	defer scheduler.Stop(context.Background())

	err := scheduler.Every(time.Millisecond*10, func() {})
	require.Error(t, err)
}

func TestManualScheduler(t *testing.T) {
	scheduler := &ManualScheduler{}

	count := 0
	require.NoError(t, scheduler.Every(time.Minute, func() { count++ }))
	require.Equal(t, []time.Duration{time.Minute}, scheduler.Intervals())

	scheduler.Fire(0)
	scheduler.Fire(0)
	scheduler.Fire(3)
	require.Equal(t, 2, count)

	require.NoError(t, scheduler.Stop(context.Background()))
	require.True(t, scheduler.Stopped())
	scheduler.Fire(0)
	require.Equal(t, 2, count)
}

func TestFixedTime(t *testing.T) {
	at := time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)
	clock := FixedTime{At: at}
	require.True(t, clock.Now().Equal(at))
	require.Equal(t, "Asia/Seoul", clock.Now().Location().String())
}
