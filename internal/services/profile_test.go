package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
)

func day(d, hour int) time.Time {
	return time.Date(2026, 3, d, hour, 0, 0, 0, time.UTC)
}

func TestComputeProfileStatsEmpty(t *testing.T) {
	stats := ComputeProfileStats(nil, day(10, 12))
	assert.Zero(t, stats.CompletedSessions)
	assert.Nil(t, stats.FavoriteMode)
	assert.Nil(t, stats.LastSessionDate)
}

func TestComputeProfileStats(t *testing.T) {
	history := []repository.CompletedSession{
		{Mode: models.ModePlay, CompletedTurns: 3, CompletedAt: day(1, 9)},
		{Mode: models.ModeMasters, CompletedTurns: 5, CompletedAt: day(2, 9)},
		{Mode: models.ModePlay, CompletedTurns: 4, CompletedAt: day(3, 9)},
		{Mode: models.ModePlay, CompletedTurns: 1, CompletedAt: day(3, 18)},
		{Mode: models.ModeMasters, CompletedTurns: 2, CompletedAt: day(7, 9)},
		{Mode: models.ModeMasters, CompletedTurns: 2, CompletedAt: day(8, 9)},
	}

	stats := ComputeProfileStats(history, day(9, 8))

	assert.Equal(t, 6, stats.CompletedSessions)
	assert.Equal(t, 17, stats.TotalTurns)
	assert.Equal(t, 3, stats.LongestStreak)
	assert.Equal(t, 2, stats.CurrentStreak)
	require.NotNil(t, stats.FavoriteMode)
	assert.Equal(t, models.ModeMasters, *stats.FavoriteMode, "tie goes to the most recent mode")
	require.NotNil(t, stats.LastSessionDate)
	assert.Equal(t, day(8, 9), *stats.LastSessionDate)
}

func TestComputeProfileStatsBrokenStreak(t *testing.T) {
	history := []repository.CompletedSession{
		{Mode: models.ModeInspire, CompletedTurns: 3, CompletedAt: day(1, 9)},
		{Mode: models.ModeInspire, CompletedTurns: 3, CompletedAt: day(2, 9)},
	}

	stats := ComputeProfileStats(history, day(5, 9))
	assert.Equal(t, 2, stats.LongestStreak)
	assert.Zero(t, stats.CurrentStreak)

	today := ComputeProfileStats(history, day(2, 23))
	assert.Equal(t, 2, today.CurrentStreak)
}
