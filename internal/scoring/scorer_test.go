package scoring

import (
	"math"
	"testing"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

func testScorer() *Scorer {
	return NewScorer(Config{
		PerfectThreshold:  95,
		GoodThreshold:     80,
		PartialThreshold:  60,
		RetryThreshold:    40,
		MaxSkippableWords: 2,
	}, logger.NewNop())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello world"},
		{"  lots   of\tspace\n", "lots of space"},
		{"don't stop", "don't stop"},
		{"twenty-one guns", "twenty-one guns"},
		{"...", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"", "abc", 0.0},
		{"kitten", "kitten", 1.0},
		{"kitten", "sitten", 1.0 - 1.0/6.0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestScorePerfect(t *testing.T) {
	r := testScorer().Score("to be or not to be", "To be, or not to be!")
	if r.Outcome != OutcomePerfect {
		t.Errorf("Outcome = %s, want perfect", r.Outcome)
	}
	if r.Accuracy != 100 {
		t.Errorf("Accuracy = %f, want 100", r.Accuracy)
	}
	if r.ErrorWords != 0 {
		t.Errorf("ErrorWords = %d, want 0", r.ErrorWords)
	}
}

func TestScoreMissedTail(t *testing.T) {
	r := testScorer().Score("four score and seven years ago", "four score and seven")
	if r.CorrectWords != 4 || r.TotalWords != 6 {
		t.Fatalf("correct/total = %d/%d, want 4/6", r.CorrectWords, r.TotalWords)
	}
	if len(r.MissedWords) != 2 || r.MissedWords[0] != "years" {
		t.Errorf("MissedWords = %v, want [years ago]", r.MissedWords)
	}
	// 4/6 is 66.7%, two errors, two thirds correct: partial band.
	if r.Outcome != OutcomePartialWithSkips {
		t.Errorf("Outcome = %s, want partial_with_skips", r.Outcome)
	}
}

func TestScoreNearMissIsNotCorrect(t *testing.T) {
	// A one-letter miss is a pronunciation error, never a correct word,
	// no matter how high the edit similarity.
	r := testScorer().Score("the quick brown fox jumped", "the quick brown fox jumper")
	if r.CorrectWords != 4 {
		t.Fatalf("CorrectWords = %d, want 4", r.CorrectWords)
	}
	if r.Accuracy != 80 {
		t.Errorf("Accuracy = %f, want 80", r.Accuracy)
	}
	last := r.Words[len(r.Words)-1]
	if last.Status != WordMispronounced {
		t.Errorf("jumped status = %s, want mispronounced", last.Status)
	}
}

func TestScoreMispronunciationVsSubstitution(t *testing.T) {
	r := testScorer().Score("remember the fundamentals always", "remember the fundamenals banana")
	statuses := make(map[string]WordStatus)
	for _, w := range r.Words {
		statuses[w.Expected] = w.Status
	}
	// Shared prefix "fundamen" is 8 of 12 runes, under the 0.7 cutoff.
	if statuses["fundamentals"] != WordSubstituted {
		t.Errorf("fundamentals status = %s, want substituted", statuses["fundamentals"])
	}
	if statuses["always"] != WordSubstituted {
		t.Errorf("always status = %s, want substituted", statuses["always"])
	}
	// Substituted words feed the review bank alongside missed ones.
	if len(r.MissedWords) != 2 || r.MissedWords[0] != "fundamentals" || r.MissedWords[1] != "always" {
		t.Errorf("MissedWords = %v, want [fundamentals always]", r.MissedWords)
	}
}

func TestScoreExtraWords(t *testing.T) {
	r := testScorer().Score("hello world", "hello world again and again")
	if len(r.ExtraWords) != 3 {
		t.Errorf("ExtraWords = %v, want 3 entries", r.ExtraWords)
	}
	if r.Accuracy != 100 {
		t.Errorf("Accuracy = %f, want 100 despite extra words", r.Accuracy)
	}
}

func TestScoreEmptyTranscript(t *testing.T) {
	r := testScorer().Score("say something", "")
	if r.Outcome != OutcomeRetryNeeded {
		t.Errorf("Outcome = %s, want retry_needed", r.Outcome)
	}
	if r.Accuracy != 0 {
		t.Errorf("Accuracy = %f, want 0", r.Accuracy)
	}
	if r.Confidence != 0 {
		t.Errorf("Confidence = %f, want 0", r.Confidence)
	}
	if len(r.MissedWords) != 2 {
		t.Errorf("MissedWords = %v, want both words", r.MissedWords)
	}
}

func TestClassifyBands(t *testing.T) {
	s := testScorer()
	tests := []struct {
		name string
		r    Result
		want Outcome
	}{
		{"perfect", Result{Accuracy: 96, CorrectWords: 10, TotalWords: 10}, OutcomePerfect},
		{"good", Result{Accuracy: 85, CorrectWords: 9, TotalWords: 10}, OutcomeGood},
		{"partial few errors", Result{Accuracy: 70, CorrectWords: 7, TotalWords: 10, ErrorWords: 2}, OutcomePartialWithSkips},
		{"partial many errors", Result{Accuracy: 62, CorrectWords: 8, TotalWords: 13, ErrorWords: 5}, OutcomeNeedsImprovement},
		{"struggling", Result{Accuracy: 45, CorrectWords: 4, TotalWords: 9, ErrorWords: 5}, OutcomeStruggling},
		{"retry", Result{Accuracy: 20, CorrectWords: 2, TotalWords: 10, ErrorWords: 8}, OutcomeRetryNeeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.classify(tt.r); got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0.0},
		{"hi", 0.6},
		{"a clear full sentence", 0.8},
	}
	for _, tt := range tests {
		if got := ConfidenceFor(tt.in); got != tt.want {
			t.Errorf("ConfidenceFor(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}
