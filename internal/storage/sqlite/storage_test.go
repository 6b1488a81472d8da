package sqlite

import (
	"testing"
	"time"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

func testDB(t *testing.T) (*AttemptStorage, *MissedWordStorage) {
	t.Helper()
	db, err := NewDB(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	attempts, err := NewAttemptStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("NewAttemptStorage() error = %v", err)
	}
	missed, err := NewMissedWordStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("NewMissedWordStorage() error = %v", err)
	}
	return attempts, missed
}

func TestAttemptRoundTrip(t *testing.T) {
	attempts, _ := testDB(t)

	record := &AttemptRecord{
		SessionID:     "sess-1",
		PositionIndex: 2,
		ChunkSequence: 3,
		Phrase:        "four score and seven",
		Transcript:    "four score and heaven",
		ProviderID:    "primary",
		Accuracy:      75,
		Outcome:       "good",
		CorrectWords:  3,
		TotalWords:    4,
		Confidence:    0.8,
		ElapsedMs:     820,
		CreatedAt:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	id, err := attempts.StoreAttempt(record)
	if err != nil {
		t.Fatalf("StoreAttempt() error = %v", err)
	}
	if id == 0 {
		t.Error("StoreAttempt() returned zero ID")
	}

	got, err := attempts.GetAttemptsBySession("sess-1")
	if err != nil {
		t.Fatalf("GetAttemptsBySession() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d attempts, want 1", len(got))
	}
	a := got[0]
	if a.Phrase != record.Phrase || a.Transcript != record.Transcript {
		t.Errorf("round trip mismatch: %+v", a)
	}
	if a.Accuracy != 75 || a.Outcome != "good" || a.ProviderID != "primary" {
		t.Errorf("round trip mismatch: %+v", a)
	}
	if a.PositionIndex != 2 || a.ChunkSequence != 3 {
		t.Errorf("ordering fields = (%d, %d), want (2, 3)", a.PositionIndex, a.ChunkSequence)
	}
	if !a.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, record.CreatedAt)
	}
}

func TestAttemptSessionIsolation(t *testing.T) {
	attempts, _ := testDB(t)
	for _, sess := range []string{"a", "a", "b"} {
		if _, err := attempts.StoreAttempt(&AttemptRecord{
			SessionID: sess, Phrase: "x", Transcript: "x",
			Outcome: "perfect", CreatedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := attempts.GetAttemptsBySession("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("session a has %d attempts, want 2", len(got))
	}

	recent, err := attempts.GetRecentAttempts(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Errorf("recent = %d attempts, want 3", len(recent))
	}
}

func TestMissedWordBank(t *testing.T) {
	_, missed := testDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	if err := missed.RecordMissed([]string{"ephemeral", "sonder"}, now); err != nil {
		t.Fatalf("RecordMissed() error = %v", err)
	}
	if err := missed.RecordMissed([]string{"ephemeral"}, now.Add(time.Minute)); err != nil {
		t.Fatalf("RecordMissed() error = %v", err)
	}

	top, err := missed.Top(10)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d words, want 2", len(top))
	}
	if top[0].Word != "ephemeral" || top[0].MissedCount != 2 {
		t.Errorf("top word = %+v, want ephemeral x2", top[0])
	}
	if top[1].Word != "sonder" || top[1].MissedCount != 1 {
		t.Errorf("second word = %+v, want sonder x1", top[1])
	}

	if err := missed.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	top, err = missed.Top(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 0 {
		t.Errorf("bank not empty after Clear: %v", top)
	}
}
