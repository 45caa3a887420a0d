package gateway

import (
	"context"
	"iter"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/scribe/pkg/transcribe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	// closeUnsupportedEngine is sent when the engine query parameter names
	// an engine this gateway does not run.
	closeUnsupportedEngine = 4000

	minIdleSeconds = 1
	maxIdleSeconds = 600
)

// sessionParams carries the per-session knobs from the query string.
type sessionParams struct {
	engine      string
	effect      bool
	useLLM      bool
	idleTimeout time.Duration
}

func (s *Server) parseSessionParams(r *http.Request) sessionParams {
	q := r.URL.Query()
	p := sessionParams{
		engine:      q.Get("engine"),
		effect:      parseBoolParam(q.Get("effect")),
		useLLM:      parseBoolParam(q.Get("use_llm")),
		idleTimeout: s.cfg.IdleTimeout(),
	}
	if p.engine == "" {
		p.engine = EngineVolcengine
	}
	if v := q.Get("idle_timeout_sec"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.idleTimeout = time.Duration(clampInt(n, minIdleSeconds, maxIdleSeconds)) * time.Second
		}
	}
	return p
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params := s.parseSessionParams(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("gateway: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if params.engine != EngineVolcengine {
		s.log.Warn("gateway: unsupported engine requested", "engine", params.engine)
		msg := websocket.FormatCloseMessage(closeUnsupportedEngine, "unsupported engine: "+params.engine)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tr := &wsTransport{conn: conn, cancel: cancel}

	p := transcribe.New(transcribe.Config{
		Transport:   tr,
		Transcriber: s.rec,
		Rewriter:    s.rw,
		UseLLM:      params.useLLM,
		Effect:      params.effect,
		IdleTimeout: params.idleTimeout,
		Logger:      s.log,
	})

	s.log.Info("gateway: session opened",
		"remote", r.RemoteAddr, "effect", params.effect, "use_llm", params.useLLM,
		"idle_timeout", params.idleTimeout)
	err = p.Run(ctx)
	s.log.Info("gateway: session closed", "remote", r.RemoteAddr, "error", err)
}

// wsTransport adapts a gorilla websocket connection to the pipeline's
// transport. Writes are serialized; gorilla allows one concurrent writer.
type wsTransport struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu sync.Mutex
}

// PCM yields binary frames until the peer disconnects. A close that is not
// a normal goodbye cancels the session so no final result is flushed to a
// peer that already gave up.
func (t *wsTransport) PCM() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			mt, data, err := t.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.cancel()
				}
				return
			}
			if mt != websocket.BinaryMessage || len(data) == 0 {
				continue
			}
			if !yield(data) {
				return
			}
		}
	}
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

var _ transcribe.Transport = (*wsTransport)(nil)
