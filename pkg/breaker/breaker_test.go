package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyferris/pyferris/internal/config"
	"github.com/pyferris/pyferris/pkg/pferrors"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})
	fail := func() (any, error) { return nil, errors.New("fail") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute("op", fail)
		require.Error(t, err)
	}
	assert.Equal(t, Open, b.State())
}

func TestOpenFailsFastWithoutInvokingCallable(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	_, err := b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	require.Error(t, err)
	require.Equal(t, Open, b.State())

	calls := 0
	_, err = b.Execute("op", func() (any, error) { calls++; return "ok", nil })
	require.Error(t, err)
	assert.True(t, pferrors.Is(err, pferrors.KindCircuitOpen))
	assert.Equal(t, 0, calls)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	_, _ = b.Execute("op", func() (any, error) { return "ok", nil })
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	require.Equal(t, Open, b.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	time.Sleep(30 * time.Millisecond)

	result, err := b.Execute("op", func() (any, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	_, err := b.Execute("op", func() (any, error) { return nil, errors.New("still failing") })
	require.Error(t, err)
	assert.Equal(t, Open, b.State())
}

func TestResetForcesClosed(t *testing.T) {
	b := New(config.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	_, _ = b.Execute("op", func() (any, error) { return nil, errors.New("fail") })
	require.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
}
