// Package gateway is the scribed HTTP surface: health probe, the
// streaming transcription WebSocket, the WAV upload path, and the
// transcription records API.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haivivi/scribe/pkg/archive"
	"github.com/haivivi/scribe/pkg/store"
	"github.com/haivivi/scribe/pkg/transcribe"
)

// EngineVolcengine is the only recognition engine scribed speaks.
const EngineVolcengine = "volcengine"

// Recognizer is the upstream speech surface the gateway drives.
// *sauc.Client implements it.
type Recognizer interface {
	transcribe.Transcriber

	// Transcribe runs the non-streaming recognition used by the upload
	// path.
	Transcribe(ctx context.Context, pcm []byte, effect bool) (string, error)

	// Configured reports whether upstream credentials are present.
	Configured() bool
}

// Options assembles a Server.
type Options struct {
	Config     *Config
	Recognizer Recognizer

	// Rewriter may be nil; streaming sessions then run without LLM
	// correction regardless of the use_llm parameter.
	Rewriter transcribe.Rewriter

	Store   *store.Store
	Archive archive.Archive
	Logger  *slog.Logger
}

// Server wires the HTTP handlers to the recognition, rewrite, store and
// archive layers.
type Server struct {
	cfg  *Config
	rec  Recognizer
	rw   transcribe.Rewriter
	st   *store.Store
	arch archive.Archive
	log  *slog.Logger
}

// New creates a Server. All Options fields except Rewriter and Logger
// are required.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:  opts.Config,
		rec:  opts.Recognizer,
		rw:   opts.Rewriter,
		st:   opts.Store,
		arch: opts.Archive,
		log:  log,
	}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/transcribe/stream", s.handleStream)
	mux.HandleFunc("POST /api/v1/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /api/v1/transcriptions", s.handleListRecords)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}", s.handleGetRecord)
	mux.HandleFunc("DELETE /api/v1/transcriptions/{id}", s.handleDeleteRecord)
	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
// Streaming sessions end with the server because their contexts descend
// from the request contexts the shutdown cancels.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.Listen,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("gateway listening", "addr", s.cfg.Listen)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("gateway: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
