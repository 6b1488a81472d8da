package session

import (
	"testing"
	"time"

	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/internal/provider"
	"github.com/irregularchat/speech-memorization/internal/scoring"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Providers: []config.ProviderConfig{
			{ID: "mock-1", Type: "mock", Priority: 1, Enabled: true},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	log := logger.NewNop()
	registry := provider.NewRegistry(cfg.Dispatch.MaxErrorCount, log)
	if err := registry.Register(provider.NewMockProvider("mock-1"), 1, 60, true); err != nil {
		t.Fatal(err)
	}
	dispatcher := provider.NewDispatcher(registry, time.Second, log)
	scorer := scoring.NewScorer(scoring.Config{
		PerfectThreshold: 95, GoodThreshold: 80,
		PartialThreshold: 60, RetryThreshold: 40,
		MaxSkippableWords: 2,
	}, log)

	m := NewManager(cfg, dispatcher, scorer, nil, nil, &capturePublisher{}, log)
	t.Cleanup(m.Shutdown)
	return m
}

func TestManagerStartAndStop(t *testing.T) {
	m := testManager(t)

	snapshot, err := m.Start("one two three four five six seven eight nine")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id := snapshot.Stats.SessionID
	if id == "" {
		t.Fatal("empty session id")
	}
	if snapshot.Stats.TotalPhrases != 2 {
		t.Errorf("TotalPhrases = %d, want 2", snapshot.Stats.TotalPhrases)
	}

	c, ok := m.Get(id)
	if !ok {
		t.Fatal("session not tracked")
	}

	if err := m.Stop(id); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	// The manager forgets finished sessions.
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := m.Get(id); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stopped session still tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerRejectsEmptyText(t *testing.T) {
	m := testManager(t)
	if _, err := m.Start("   "); err == nil {
		t.Error("Start() with empty text = nil error")
	}
}

func TestManagerUnknownSession(t *testing.T) {
	m := testManager(t)
	if err := m.Skip("missing"); err == nil {
		t.Error("Skip() unknown session = nil error")
	}
	if err := m.Stop("missing"); err == nil {
		t.Error("Stop() unknown session = nil error")
	}
	if _, err := m.Snapshot("missing"); err == nil {
		t.Error("Snapshot() unknown session = nil error")
	}
}
