package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wraps the API handler with its route table
type Router struct {
	handler *Handler
}

// NewRouter creates a router around the given handler
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Routes builds the chi route table
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.handler.GetHealth)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", rt.handler.CreateSession)
			r.Get("/{id}", rt.handler.GetSession)
			r.Post("/{id}/audio", rt.handler.PushAudio)
			r.Post("/{id}/skip", rt.handler.SkipPhrase)
			r.Post("/{id}/stop", rt.handler.StopSession)
			r.Delete("/{id}", rt.handler.StopSession)
			r.Get("/{id}/attempts", rt.handler.GetSessionAttempts)
		})

		r.Get("/attempts/recent", rt.handler.GetRecentAttempts)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", rt.handler.GetProviders)
			r.Put("/{id}/enabled", rt.handler.SetProviderEnabled)
		})

		r.Route("/missed-words", func(r chi.Router) {
			r.Get("/", rt.handler.GetMissedWords)
			r.Delete("/", rt.handler.ClearMissedWords)
		})
	})

	r.Get("/ws", rt.handler.HandleWebSocket)

	if dir := rt.handler.config.Server.StaticDir; dir != "" {
		r.Handle("/*", NewStaticHandler(dir, rt.handler.logger))
	}

	return r
}

// corsMiddleware applies the configured CORS policy
func (rt *Router) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && rt.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) originAllowed(origin string) bool {
	for _, allowed := range rt.handler.config.Server.CORSAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
