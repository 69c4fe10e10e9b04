package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyferris/pyferris/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New(config.CheckpointConfig{CheckpointDir: dir}, nil)
	require.NoError(t, err)
	return m
}

func TestSaveAndGetLatestCheckpoint(t *testing.T) {
	m := newTestManager(t)

	_, err := m.SaveCheckpoint("train", map[string]string{"epoch": "1"}, 0.25, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := m.SaveCheckpoint("train", map[string]string{"epoch": "2"}, 0.5, nil)
	require.NoError(t, err)

	latest, ok, err := m.GetLatestCheckpoint("train")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 0.5, latest.Progress)
	assert.Equal(t, "2", latest.State["epoch"])
}

func TestListCheckpointsNewestFirst(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 3; i++ {
		_, err := m.SaveCheckpoint("job", map[string]string{"n": string(rune('a' + i))}, float64(i)/3, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := m.ListCheckpoints("job")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 0; i < len(list)-1; i++ {
		assert.True(t, list[i].Timestamp.After(list[i+1].Timestamp) || list[i].Timestamp.Equal(list[i+1].Timestamp))
	}
}

func TestMaxCheckpointsEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	m, err := New(config.CheckpointConfig{CheckpointDir: dir, MaxCheckpoints: 2}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := m.SaveCheckpoint("job", nil, float64(i)/5, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := m.ListCheckpoints("job")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCorruptFileIsSkipped(t *testing.T) {
	m := newTestManager(t)

	_, err := m.SaveCheckpoint("job", nil, 0.1, nil)
	require.NoError(t, err)

	corrupt := filepath.Join(m.cfg.CheckpointDir, "job-00000000000000000001-bogus.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not valid json"), 0o644))

	list, err := m.ListCheckpoints("job")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckpointResumeScenario(t *testing.T) {
	m := newTestManager(t)

	_, err := m.SaveCheckpoint("X", map[string]string{"step": "10"}, 0.25, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = m.SaveCheckpoint("X", map[string]string{"step": "20"}, 0.5, nil)
	require.NoError(t, err)

	latest, ok, err := m.GetLatestCheckpoint("X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, latest.Progress)
	assert.Equal(t, "20", latest.State["step"])
}

func TestAutoCheckpointThrottles(t *testing.T) {
	m := newTestManager(t)
	auto := NewAutoCheckpoint(m, 50*time.Millisecond)

	_, saved, err := auto.MaybeCheckpoint("op", nil, 0.1, nil)
	require.NoError(t, err)
	assert.True(t, saved)

	_, saved, err = auto.MaybeCheckpoint("op", nil, 0.2, nil)
	require.NoError(t, err)
	assert.False(t, saved)

	time.Sleep(60 * time.Millisecond)
	_, saved, err = auto.MaybeCheckpoint("op", nil, 0.3, nil)
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestAutoCheckpointForceBypassesThrottle(t *testing.T) {
	m := newTestManager(t)
	auto := NewAutoCheckpoint(m, time.Hour)

	_, saved, err := auto.MaybeCheckpoint("op", nil, 0.1, nil)
	require.NoError(t, err)
	assert.True(t, saved)

	_, err = auto.ForceCheckpoint("op", nil, 0.9, nil)
	require.NoError(t, err)

	latest, ok, err := m.GetLatestCheckpoint("op")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, latest.Progress)
}
