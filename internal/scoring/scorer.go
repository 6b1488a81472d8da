package scoring

import (
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// Outcome classifies an attempt by accuracy band
type Outcome string

const (
	OutcomePerfect          Outcome = "perfect"
	OutcomeGood             Outcome = "good"
	OutcomePartialWithSkips Outcome = "partial_with_skips"
	OutcomeNeedsImprovement Outcome = "needs_improvement"
	OutcomeStruggling       Outcome = "struggling"
	OutcomeRetryNeeded      Outcome = "retry_needed"
)

// WordStatus classifies a single expected word against what was heard
type WordStatus string

const (
	WordCorrect       WordStatus = "correct"
	WordMissed        WordStatus = "missed"
	WordMispronounced WordStatus = "mispronounced"
	WordSubstituted   WordStatus = "substituted"
)

// WordResult is the per-word detail of a scored attempt
type WordResult struct {
	Expected   string     `json:"expected"`
	Heard      string     `json:"heard,omitempty"`
	Status     WordStatus `json:"status"`
	Similarity float64    `json:"similarity"`
}

// Result is the full scoring verdict for one attempt at a phrase
type Result struct {
	Accuracy     float64      `json:"accuracy"`   // Percentage of expected words heard correctly
	Similarity   float64      `json:"similarity"` // Whole-phrase edit similarity
	Outcome      Outcome      `json:"outcome"`
	Words        []WordResult `json:"words"`
	CorrectWords int          `json:"correct_words"`
	TotalWords   int          `json:"total_words"`
	ErrorWords   int          `json:"error_words"` // Mispronounced, substituted, or missed
	ExtraWords   []string     `json:"extra_words,omitempty"`
	MissedWords  []string     `json:"missed_words,omitempty"`
	Confidence   float64      `json:"confidence"`
}

// Config contains the accuracy thresholds for outcome classification
type Config struct {
	PerfectThreshold  float64
	GoodThreshold     float64
	PartialThreshold  float64
	RetryThreshold    float64
	MaxSkippableWords int
}

// Scorer compares transcribed speech against expected phrases. The word
// comparison is positional: word i of the transcript is judged against
// word i of the phrase, so an inserted word shifts everything after it.
type Scorer struct {
	cfg    Config
	logger *logger.Logger
}

// NewScorer creates a scorer with the given thresholds
func NewScorer(cfg Config, log *logger.Logger) *Scorer {
	return &Scorer{cfg: cfg, logger: log.Named("scorer")}
}

// Shared-prefix fraction that separates a mispronunciation from a
// substitution. A word is correct only on exact normalized match.
const pronunciationPrefix = 0.7

// Score judges a transcript against the expected phrase
func (s *Scorer) Score(expected, transcript string) Result {
	expectedWords := Words(expected)
	heardWords := Words(transcript)

	result := Result{
		TotalWords: len(expectedWords),
		Similarity: Similarity(Normalize(expected), Normalize(transcript)),
		Confidence: ConfidenceFor(transcript),
	}

	for i, want := range expectedWords {
		wr := WordResult{Expected: want}
		if i >= len(heardWords) {
			wr.Status = WordMissed
			result.MissedWords = append(result.MissedWords, want)
		} else {
			heard := heardWords[i]
			wr.Heard = heard
			wr.Similarity = Similarity(want, heard)
			switch {
			case want == heard:
				wr.Status = WordCorrect
				result.CorrectWords++
			case prefixFraction(want, heard) > pronunciationPrefix:
				wr.Status = WordMispronounced
			default:
				wr.Status = WordSubstituted
				result.MissedWords = append(result.MissedWords, want)
			}
		}
		result.Words = append(result.Words, wr)
	}

	if len(heardWords) > len(expectedWords) {
		result.ExtraWords = heardWords[len(expectedWords):]
	}

	result.ErrorWords = result.TotalWords - result.CorrectWords
	if result.TotalWords > 0 {
		result.Accuracy = float64(result.CorrectWords) / float64(result.TotalWords) * 100
	}
	result.Outcome = s.classify(result)

	s.logger.Debug("Scored attempt",
		logger.Float64("accuracy", result.Accuracy),
		logger.String("outcome", string(result.Outcome)),
		logger.Int("correct", result.CorrectWords),
		logger.Int("total", result.TotalWords))

	return result
}

func (s *Scorer) classify(r Result) Outcome {
	correctRatio := 0.0
	if r.TotalWords > 0 {
		correctRatio = float64(r.CorrectWords) / float64(r.TotalWords)
	}
	switch {
	case r.Accuracy >= s.cfg.PerfectThreshold:
		return OutcomePerfect
	case r.Accuracy >= s.cfg.GoodThreshold:
		return OutcomeGood
	case r.Accuracy >= s.cfg.PartialThreshold && r.ErrorWords <= s.cfg.MaxSkippableWords && correctRatio >= 0.6:
		return OutcomePartialWithSkips
	case r.Accuracy >= s.cfg.PartialThreshold:
		return OutcomeNeedsImprovement
	case r.Accuracy >= s.cfg.RetryThreshold:
		return OutcomeStruggling
	default:
		return OutcomeRetryNeeded
	}
}

// ConfidenceFor estimates transcript confidence when the backend does
// not report one. Empty transcripts are worthless, very short ones are
// suspect, everything else gets a flat moderate score.
func ConfidenceFor(transcript string) float64 {
	n := Normalize(transcript)
	switch {
	case n == "":
		return 0.0
	case len(n) < 5:
		return 0.6
	default:
		return 0.8
	}
}

// prefixFraction returns the shared prefix length as a fraction of the
// expected word's length
func prefixFraction(expected, heard string) float64 {
	re := []rune(expected)
	rh := []rune(heard)
	if len(re) == 0 {
		return 0
	}
	n := 0
	for n < len(re) && n < len(rh) && re[n] == rh[n] {
		n++
	}
	return float64(n) / float64(len(re))
}
