package session

import (
	"errors"
	"time"

	"github.com/irregularchat/speech-memorization/internal/scoring"
)

// Status is a session's lifecycle state
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Advancement explains why a session moved (or refused to move) past a
// phrase
type Advancement string

const (
	AdvanceClean   Advancement = "clean"                // Accuracy and error budget both satisfied
	AdvanceForced  Advancement = "partial_progression"  // Attempt budget exhausted, moved on anyway
	AdvanceSkipped Advancement = "skipped"              // Manual skip after enough attempts
	AdvanceNone    Advancement = "retry"                // Stay on the current phrase
)

// Decision is the verdict for one recorded attempt
type Decision struct {
	Outcome     scoring.Outcome `json:"outcome"`
	Advancement Advancement     `json:"advancement"`
	Attempts    int             `json:"attempts"`     // Attempts at this phrase including this one
	SkipAllowed bool            `json:"skip_allowed"` // Whether a manual skip is now permitted
	Completed   bool            `json:"completed"`    // Whether this attempt finished the session
	NextIndex   int             `json:"next_index"`
}

// Rules are the advancement parameters for a session
type Rules struct {
	GoodThreshold     float64 // Accuracy at which an attempt advances regardless of error words
	PartialThreshold  float64 // Minimum accuracy to advance within the error-word budget
	RetryThreshold    float64 // Minimum accuracy for a forced advance once attempts run out
	MaxSkippableWords int     // Maximum error words to advance in the partial band
	MaxAttempts       int     // Attempts after which advancement is forced and skips allowed
}

// ErrSkipNotAllowed is returned by Skip before the attempt budget for
// the current phrase is used up
var ErrSkipNotAllowed = errors.New("skip not allowed yet")

// ErrSessionDone is returned when recording against a finished session
var ErrSessionDone = errors.New("session is not active")

// Session tracks progress through the phrases of one practice text. It
// is a plain state machine; the coordinator serializes access.
type Session struct {
	ID        string
	Phrases   []Phrase
	Current   int
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time

	rules    Rules
	attempts map[string]int

	totalAttempts int
	totalCorrect  int
	totalExpected int
	spokenWords   int
	outcomes      map[scoring.Outcome]int
	missedWords   []string
}

// New creates an active session over the phrases of the given text
func New(id, text string, wordCount int, rules Rules, now time.Time) (*Session, error) {
	phrases := ExtractPhrases(text, wordCount)
	if len(phrases) == 0 {
		return nil, errors.New("text contains no practicable words")
	}
	return &Session{
		ID:        id,
		Phrases:   phrases,
		Status:    StatusActive,
		StartedAt: now,
		rules:     rules,
		attempts:  make(map[string]int),
		outcomes:  make(map[scoring.Outcome]int),
	}, nil
}

// CurrentPhrase returns the phrase under practice
func (s *Session) CurrentPhrase() (Phrase, bool) {
	if s.Current < 0 || s.Current >= len(s.Phrases) {
		return Phrase{}, false
	}
	return s.Phrases[s.Current], true
}

// RecordAttempt applies a scored attempt at the current phrase and
// decides whether the session advances
func (s *Session) RecordAttempt(result scoring.Result, now time.Time) (Decision, error) {
	if s.Status != StatusActive {
		return Decision{}, ErrSessionDone
	}
	phrase, ok := s.CurrentPhrase()
	if !ok {
		return Decision{}, ErrSessionDone
	}

	key := attemptKey(phrase.Index, phrase.Text)
	s.attempts[key]++
	attempts := s.attempts[key]

	s.totalAttempts++
	s.totalCorrect += result.CorrectWords
	s.totalExpected += result.TotalWords
	s.spokenWords += result.CorrectWords + len(result.ExtraWords)
	s.outcomes[result.Outcome]++

	decision := Decision{
		Outcome:     result.Outcome,
		Attempts:    attempts,
		SkipAllowed: attempts >= s.rules.MaxAttempts,
	}

	// Good and perfect attempts advance outright; the error-word budget
	// only gates the partial band. Once the attempt budget is spent,
	// attempts showing real progress get pushed through anyway; hopeless
	// ones stay put with the skip unlocked so the user decides.
	switch {
	case result.Accuracy >= s.rules.GoodThreshold:
		decision.Advancement = AdvanceClean
	case result.Accuracy >= s.rules.PartialThreshold && result.ErrorWords <= s.rules.MaxSkippableWords:
		decision.Advancement = AdvanceClean
	case attempts >= s.rules.MaxAttempts && result.Accuracy >= s.rules.RetryThreshold:
		decision.Advancement = AdvanceForced
	default:
		decision.Advancement = AdvanceNone
	}

	// The review bank only collects words from the attempt that moved
	// the phrase forward; retries would count the same words repeatedly.
	if decision.Advancement != AdvanceNone {
		s.missedWords = append(s.missedWords, result.MissedWords...)
		s.advance(now)
	}
	decision.Completed = s.Status == StatusCompleted
	decision.NextIndex = s.Current
	return decision, nil
}

// Skip moves past the current phrase manually. Only permitted once the
// attempt budget for the phrase is used up.
func (s *Session) Skip(now time.Time) (Decision, error) {
	if s.Status != StatusActive {
		return Decision{}, ErrSessionDone
	}
	phrase, ok := s.CurrentPhrase()
	if !ok {
		return Decision{}, ErrSessionDone
	}
	attempts := s.attempts[attemptKey(phrase.Index, phrase.Text)]
	if attempts < s.rules.MaxAttempts {
		return Decision{}, ErrSkipNotAllowed
	}

	s.advance(now)
	return Decision{
		Advancement: AdvanceSkipped,
		Attempts:    attempts,
		SkipAllowed: true,
		Completed:   s.Status == StatusCompleted,
		NextIndex:   s.Current,
	}, nil
}

// Stop ends the session without finishing the text
func (s *Session) Stop(now time.Time) {
	if s.Status == StatusActive {
		s.Status = StatusStopped
		s.EndedAt = now
	}
}

// MissedWords returns every word missed across the session, in order of
// occurrence and with repeats
func (s *Session) MissedWords() []string {
	return s.missedWords
}

func (s *Session) advance(now time.Time) {
	s.Current++
	if s.Current >= len(s.Phrases) {
		s.Status = StatusCompleted
		s.EndedAt = now
	}
}
