package services

import (
	"time"

	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
)

// ProfileStats are the derived fields of a user profile.
type ProfileStats struct {
	CompletedSessions int
	TotalTurns        int
	CurrentStreak     int
	LongestStreak     int
	FavoriteMode      *models.Mode
	LastSessionDate   *time.Time
}

// ComputeProfileStats derives profile statistics from a user's terminal
// sessions, oldest first. A streak is a run of consecutive UTC days with at
// least one finished session; the current streak survives until the end of
// the day after its last session. Favorite mode ties go to the mode used
// most recently.
func ComputeProfileStats(history []repository.CompletedSession, now time.Time) ProfileStats {
	var stats ProfileStats
	if len(history) == 0 {
		return stats
	}

	counts := make(map[models.Mode]int)
	lastUsed := make(map[models.Mode]int)
	var days []time.Time

	for i, h := range history {
		stats.CompletedSessions++
		stats.TotalTurns += h.CompletedTurns
		counts[h.Mode]++
		lastUsed[h.Mode] = i

		day := utcDay(h.CompletedAt)
		if len(days) == 0 || !days[len(days)-1].Equal(day) {
			days = append(days, day)
		}
	}

	last := history[len(history)-1].CompletedAt
	stats.LastSessionDate = &last

	var best models.Mode
	for mode, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && lastUsed[mode] > lastUsed[best]) {
			best = mode
		}
	}
	stats.FavoriteMode = &best

	run := 0
	for i, d := range days {
		if i > 0 && d.Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > stats.LongestStreak {
			stats.LongestStreak = run
		}
	}

	if gap := utcDay(now).Sub(days[len(days)-1]); gap <= 24*time.Hour {
		stats.CurrentStreak = run
	}

	return stats
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
