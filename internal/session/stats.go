package session

import (
	"time"

	"github.com/irregularchat/speech-memorization/internal/scoring"
)

// Stats summarizes a session's performance so far
type Stats struct {
	SessionID       string                  `json:"session_id"`
	Status          Status                  `json:"status"`
	TotalPhrases    int                     `json:"total_phrases"`
	CompletedCount  int                     `json:"completed_phrases"`
	TotalAttempts   int                     `json:"total_attempts"`
	Accuracy        float64                 `json:"accuracy"`         // Correct words over expected words, as a percentage
	WordsPerMinute  float64                 `json:"words_per_minute"` // Spoken words over elapsed time
	Elapsed         time.Duration           `json:"-"`
	ElapsedSeconds  float64                 `json:"elapsed_seconds"`
	Outcomes        map[scoring.Outcome]int `json:"outcomes"`
	MissedWordCount int                     `json:"missed_word_count"`
}

// Stats computes the summary as of now
func (s *Session) Stats(now time.Time) Stats {
	end := now
	if s.Status != StatusActive && !s.EndedAt.IsZero() {
		end = s.EndedAt
	}
	elapsed := end.Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	stats := Stats{
		SessionID:       s.ID,
		Status:          s.Status,
		TotalPhrases:    len(s.Phrases),
		CompletedCount:  s.Current,
		TotalAttempts:   s.totalAttempts,
		Elapsed:         elapsed,
		ElapsedSeconds:  elapsed.Seconds(),
		Outcomes:        make(map[scoring.Outcome]int, len(s.outcomes)),
		MissedWordCount: len(s.missedWords),
	}
	if stats.CompletedCount > stats.TotalPhrases {
		stats.CompletedCount = stats.TotalPhrases
	}
	for outcome, count := range s.outcomes {
		stats.Outcomes[outcome] = count
	}
	if s.totalExpected > 0 {
		stats.Accuracy = float64(s.totalCorrect) / float64(s.totalExpected) * 100
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		stats.WordsPerMinute = float64(s.spokenWords) / minutes
	}
	return stats
}
