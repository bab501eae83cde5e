package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialGrowth(t *testing.T) {
	base := 100 * time.Millisecond

	require.Equal(t, 100*time.Millisecond, Exponential(base, 0))
	require.Equal(t, 200*time.Millisecond, Exponential(base, 1))
	require.Equal(t, 400*time.Millisecond, Exponential(base, 2))
	require.Equal(t, 800*time.Millisecond, Exponential(base, 3))
}

func TestExponentialDoesNotOverflow(t *testing.T) {
	d := Exponential(time.Second, 500)
	require.Greater(t, d, time.Duration(0))
}

func TestFullJitterStaysWithinDelay(t *testing.T) {
	delay := time.Second
	for i := 0; i < 100; i++ {
		j := FullJitter(delay)
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.LessOrEqual(t, j, delay)
	}
}

func TestSleepWithContextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SleepWithContext(ctx, time.Minute)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestSleepWithContextCompletes(t *testing.T) {
	err := SleepWithContext(context.Background(), time.Millisecond)
	require.NoError(t, err)
}
