package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/internal/provider"
	"github.com/irregularchat/speech-memorization/internal/session"
	"github.com/irregularchat/speech-memorization/internal/storage/sqlite"
	"github.com/irregularchat/speech-memorization/internal/websocket"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// maxAudioMessageBytes bounds a single HTTP audio upload; 10s of
// 32-bit float samples at 48 kHz fits comfortably.
const maxAudioMessageBytes = 2 << 20

// Handler contains the API handlers
type Handler struct {
	sessions        *session.Manager
	registry        *provider.Registry
	config          *config.Config
	logger          *logger.Logger
	wsServer        *websocket.Server
	attemptStorage  *sqlite.AttemptStorage
	missedWordStore *sqlite.MissedWordStorage
}

// NewHandler creates a new API handler. Storage arguments may be nil
// when persistence is disabled.
func NewHandler(
	sessions *session.Manager,
	registry *provider.Registry,
	config *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
	attemptStorage *sqlite.AttemptStorage,
	missedWordStore *sqlite.MissedWordStorage,
) *Handler {
	return &Handler{
		sessions:        sessions,
		registry:        registry,
		config:          config,
		logger:          log.Named("api-handler"),
		wsServer:        wsServer,
		attemptStorage:  attemptStorage,
		missedWordStore: missedWordStore,
	}
}

// CreateSession starts a practice session over the posted text
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		h.respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	snapshot, err := h.sessions.Start(req.Text)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Created practice session",
		logger.String("session_id", snapshot.Stats.SessionID),
		logger.Int("phrases", snapshot.Stats.TotalPhrases))
	h.respondJSON(w, http.StatusCreated, snapshot)
}

// GetSession returns the live state of a session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snapshot, err := h.sessions.Snapshot(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, snapshot)
}

// SkipPhrase advances a session past its current phrase
func (h *Handler) SkipPhrase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Skip(id); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// PushAudio accepts one encoded audio message for a session over HTTP,
// as an alternative to binary websocket frames. The body carries the
// same stream header + PCM layout.
func (h *Handler) PushAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAudioMessageBytes+1))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read audio body")
		return
	}
	if len(body) == 0 {
		h.respondError(w, http.StatusBadRequest, "empty audio body")
		return
	}
	if len(body) > maxAudioMessageBytes {
		h.respondError(w, http.StatusRequestEntityTooLarge, "audio message too large")
		return
	}
	if err := h.sessions.PushAudio(id, body); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// StopSession ends a session
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Stop(id); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// GetSessionAttempts returns the persisted attempt log for a session
func (h *Handler) GetSessionAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attemptStorage == nil {
		h.respondError(w, http.StatusNotImplemented, "persistence is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	attempts, err := h.attemptStorage.GetAttemptsBySession(id)
	if err != nil {
		h.logger.Error("Failed to load attempts", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load attempts")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// GetRecentAttempts returns the latest persisted attempts
func (h *Handler) GetRecentAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attemptStorage == nil {
		h.respondError(w, http.StatusNotImplemented, "persistence is disabled")
		return
	}
	limit := parseLimit(r, 50)
	attempts, err := h.attemptStorage.GetRecentAttempts(limit)
	if err != nil {
		h.logger.Error("Failed to load attempts", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load attempts")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// GetProviders returns the dispatch health of every provider
func (h *Handler) GetProviders(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"providers": h.registry.Health(time.Now()),
	})
}

// SetProviderEnabled toggles a provider in or out of dispatch
func (h *Handler) SetProviderEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.SetEnabled(id, req.Enabled); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Info("Provider toggled",
		logger.String("provider_id", id),
		logger.Bool("enabled", req.Enabled))
	h.respondJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": req.Enabled})
}

// GetMissedWords returns the most frequently missed words
func (h *Handler) GetMissedWords(w http.ResponseWriter, r *http.Request) {
	if h.missedWordStore == nil {
		h.respondError(w, http.StatusNotImplemented, "persistence is disabled")
		return
	}
	limit := parseLimit(r, 25)
	words, err := h.missedWordStore.Top(limit)
	if err != nil {
		h.logger.Error("Failed to load missed words", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load missed words")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"missed_words": words})
}

// ClearMissedWords empties the missed-word bank
func (h *Handler) ClearMissedWords(w http.ResponseWriter, r *http.Request) {
	if h.missedWordStore == nil {
		h.respondError(w, http.StatusNotImplemented, "persistence is disabled")
		return
	}
	if err := h.missedWordStore.Clear(); err != nil {
		h.logger.Error("Failed to clear missed words", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to clear missed words")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GetHealth is a liveness probe
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func parseLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}
