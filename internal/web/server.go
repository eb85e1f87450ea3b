// Package web serves the control API, the Prometheus endpoint, a
// websocket status stream and the embedded dashboard.
package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vrtuned-go/vrtuned/internal/config"
	"github.com/vrtuned-go/vrtuned/internal/engine"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// statusStreamInterval paces the websocket status frames.
const statusStreamInterval = 2 * time.Second

type Server struct {
	engine   *engine.Engine
	version  string
	hub      *Hub
	cfgPath  string
	staticFS fs.FS
}

func NewServer(eng *engine.Engine, version, cfgPath string) *Server {
	return &Server{
		engine:  eng,
		version: version,
		hub:     NewHub(),
		cfgPath: cfgPath,
	}
}

func (s *Server) SetStaticFS(staticFS fs.FS) {
	s.staticFS = staticFS
}

// Handler builds the route table. Split from Start so tests can drive
// the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/apply", s.handleApply)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/modes", s.handleModes)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.engine.Metrics().Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/ws", s.hub.HandleWS)

	if s.staticFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.staticFS)))
	} else {
		mux.Handle("/", http.FileServer(http.Dir("internal/web/static")))
	}

	return mux
}

// Start serves until the listener fails. The hub's stream goroutine
// pushes a status frame to every websocket client on a fixed cadence.
func (s *Server) Start(addr string) error {
	go s.hub.Stream(statusStreamInterval, func() any {
		return map[string]any{"type": "status", "status": s.statusResponse()}
	})

	log.Printf("web server starting on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

type statusPayload struct {
	engine.Status
	Version string `json:"version"`
}

func (s *Server) statusResponse() statusPayload {
	return statusPayload{Status: s.engine.Status(), Version: s.version}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.statusResponse())
}

type settingsPayload struct {
	Tuning  config.Tuning `json:"tuning"`
	Applied tune.Global   `json:"applied"`
}

func currentTuning() config.Tuning {
	if cfg := config.Get(); cfg != nil {
		return cfg.Tuning
	}
	return config.Default().Tuning
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, settingsPayload{
		Tuning:  currentTuning(),
		Applied: s.engine.Global(),
	})
}

// handleUpdateSettings validates the posted tuning section, persists it
// and applies it to every manager in one step.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in config.Tuning
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	g, err := in.Global()
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	cfg := config.Get()
	if cfg == nil {
		cfg = config.Default()
	}
	updated := *cfg
	updated.Tuning = in
	if s.cfgPath != "" {
		if err := config.Save(s.cfgPath, &updated); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
	} else {
		config.Set(&updated)
	}

	if err := s.engine.ApplyAll(r.Context(), g); err != nil {
		if errors.Is(err, tune.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	jsonResponse(w, settingsPayload{Tuning: in, Applied: s.engine.Global()})
}

// handleApply re-applies the last global input, re-asserting every
// tunable against whatever the OS state has drifted to.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ApplyAll(r.Context(), s.engine.Global()); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	jsonResponse(w, map[string]string{"status": "applied"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetAll(r.Context()); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	jsonResponse(w, map[string]string{"status": "reset"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h := s.engine.History()
	if h == nil {
		h = []tune.Action{}
	}
	jsonResponse(w, h)
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, tune.Modes)
}
