package transcribe

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// correctionWindow paces the correction driver: at most one rewrite
	// and one downstream message per window.
	correctionWindow = 1800 * time.Millisecond

	// corrFlushWait bounds how long the idle watcher waits for the
	// correction driver to flush its final before forcing teardown.
	corrFlushWait = 60 * time.Second

	// maxIdleTick caps the idle watcher poll interval so short timeouts
	// are still detected promptly.
	maxIdleTick = 5 * time.Second

	defaultIdleTimeout = 5 * time.Minute

	// historyKeep is how many stable transcript lines feed the rewriter
	// as context.
	historyKeep = 3
)

// Config assembles one session.
type Config struct {
	Transport   Transport
	Transcriber Transcriber

	// Rewriter is consulted only when UseLLM is set; a nil Rewriter
	// disables correction regardless of UseLLM.
	Rewriter Rewriter
	UseLLM   bool

	// Effect enables upstream semantic cleanup of disfluencies.
	Effect bool

	// IdleTimeout reaps the session when no ASR update arrives for this
	// long. Zero means a 5 minute default.
	IdleTimeout time.Duration

	Logger *slog.Logger
}

// Pipeline is one transcription session: an ASR consumer feeding shared
// snapshot state, a throttled correction driver emitting to the client,
// and an idle watcher reaping silent sessions. Whatever happens upstream,
// the driver sends exactly one final Result unless the context is
// cancelled from outside.
type Pipeline struct {
	cfg Config
	log *slog.Logger

	// Overridable in tests.
	window    time.Duration
	flushWait time.Duration
	idleTick  time.Duration

	mu         sync.Mutex
	currentASR string
	lastUpdate time.Time
	asrDone    bool
	streamErr  error

	idleChan chan struct{}
	idleOnce sync.Once

	consDone chan struct{}
	corrDone chan struct{}
}

// New creates a session pipeline. Run may be called at most once.
func New(cfg Config) *Pipeline {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		log:       log,
		window:    correctionWindow,
		flushWait: corrFlushWait,
		idleTick:  maxIdleTick,
		idleChan:  make(chan struct{}),
		consDone:  make(chan struct{}),
		corrDone:  make(chan struct{}),
	}
}

// Run drives the session until the idle watcher reaps it or ctx is
// cancelled. The returned error reports an upstream recognition failure;
// the client has already been told about it in the final message, so
// callers only need it for logging.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.lastUpdate = time.Now()
	p.mu.Unlock()

	pcm := make(chan []byte, 8)
	go p.pumpPCM(ctx, pcm)

	go p.consumeSnapshots(ctx, pcm)
	go p.runCorrection(ctx)
	p.watchIdle(ctx, cancel)

	cancel()
	<-p.corrDone
	<-p.consDone
	return p.streamError()
}

// pumpPCM forwards client audio into a channel the upstream sender can
// select against. The transport read itself is not cancellable, so this
// goroutine may stay parked on it until the session entrypoint closes the
// client connection; it is deliberately not joined by Run.
func (p *Pipeline) pumpPCM(ctx context.Context, out chan<- []byte) {
	defer close(out)
	for chunk := range p.cfg.Transport.PCM() {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

// chanSeq adapts the pumped channel back into a sequence that also ends
// on ctx cancellation.
func chanSeq(ctx context.Context, ch <-chan []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			select {
			case chunk, ok := <-ch:
				if !ok {
					return
				}
				if !yield(chunk) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// consumeSnapshots drains the upstream snapshot sequence into the shared
// state. asrDone is set in the unwind, so once observed together with a
// snapshot the snapshot is known to be the last one.
func (p *Pipeline) consumeSnapshots(ctx context.Context, pcm <-chan []byte) {
	defer close(p.consDone)
	defer p.markDone()

	for snap, err := range p.cfg.Transcriber.Stream(ctx, chanSeq(ctx, pcm), p.cfg.Effect) {
		if err != nil {
			p.log.Warn("transcribe: recognition stream failed", "error", err)
			p.setStreamError(err)
			return
		}
		p.setSnapshot(snap)
	}
}

// runCorrection is the throttled emitter. Each iteration takes the
// freshest snapshot, optionally rewrites it, and sends it downstream if
// it changed; the loop ends with exactly one final Result unless ctx was
// cancelled from outside.
func (p *Pipeline) runCorrection(ctx context.Context) {
	defer close(p.corrDone)

	correct := p.cfg.UseLLM && p.cfg.Rewriter != nil
	var lastSnap, lastText string
	var history []string

	rewriteSnap := func(snap string) string {
		rewritten, err := p.cfg.Rewriter.Rewrite(ctx, snap, historyTail(history))
		if err != nil {
			p.log.Warn("transcribe: rewrite failed, keeping raw transcript", "error", err)
			return snap
		}
		if _, done := p.snapshot(); done {
			history = append(history, rewritten)
		}
		return rewritten
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.idleChan:
		case <-time.After(p.window):
		}

		if p.streamError() != nil {
			break
		}

		snap, done := p.snapshot()
		closing := done || p.idleRequested()

		if snap == "" || snap == lastSnap {
			if !closing {
				continue
			}
			// One last rewrite on the way out: the tail of the
			// transcript has not been corrected with the full utterance
			// in view yet.
			if correct && snap != "" {
				text := rewriteSnap(snap)
				if ctx.Err() != nil {
					return
				}
				if text != lastText {
					p.send(Result{Text: text})
					lastSnap, lastText = snap, text
				}
			}
			break
		}

		text := snap
		if correct {
			text = rewriteSnap(snap)
			if ctx.Err() != nil {
				return
			}
		}
		if text != lastText {
			p.send(Result{Text: text})
		}
		lastSnap, lastText = snap, text

		if _, done := p.snapshot(); done || p.idleRequested() {
			break
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := p.streamError(); err != nil {
		p.send(Result{IsFinal: true, Error: err.Error()})
		return
	}
	p.send(Result{Text: lastText, IsFinal: true})
}

// watchIdle reaps the session when ASR updates stop arriving. It returns
// early when the correction driver finished because of an upstream error,
// and quietly on outside cancellation.
func (p *Pipeline) watchIdle(ctx context.Context, cancel context.CancelFunc) {
	tick := p.idleTick
	if p.cfg.IdleTimeout < tick {
		tick = p.cfg.IdleTimeout
	}

	corrDone := p.corrDone
	for {
		select {
		case <-ctx.Done():
			return
		case <-corrDone:
			if p.streamError() != nil {
				return
			}
			// Driver already flushed its final; keep the session around
			// until the idle timeout so late audio does not race the
			// teardown.
			corrDone = nil
			continue
		case <-time.After(tick):
		}

		if p.sinceLastUpdate() < p.cfg.IdleTimeout {
			continue
		}

		p.requestIdle()
		select {
		case <-p.corrDone:
		case <-time.After(p.flushWait):
			p.log.Warn("transcribe: final flush timed out, forcing teardown", "wait", p.flushWait)
			cancel()
			<-p.corrDone
		case <-ctx.Done():
			return
		}
		p.send(Closed{Closed: true, Reason: ReasonIdleTimeout})
		p.log.Info("transcribe: session reaped", "idle_timeout", p.cfg.IdleTimeout)
		return
	}
}

func (p *Pipeline) setSnapshot(text string) {
	p.mu.Lock()
	p.currentASR = text
	p.lastUpdate = time.Now()
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() (text string, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentASR, p.asrDone
}

func (p *Pipeline) markDone() {
	p.mu.Lock()
	p.asrDone = true
	p.mu.Unlock()
}

func (p *Pipeline) setStreamError(err error) {
	p.mu.Lock()
	if p.streamErr == nil {
		p.streamErr = err
	}
	p.mu.Unlock()
}

func (p *Pipeline) streamError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamErr
}

func (p *Pipeline) sinceLastUpdate() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastUpdate)
}

func (p *Pipeline) requestIdle() {
	p.idleOnce.Do(func() { close(p.idleChan) })
}

func (p *Pipeline) idleRequested() bool {
	select {
	case <-p.idleChan:
		return true
	default:
		return false
	}
}

func (p *Pipeline) send(v any) {
	if err := p.cfg.Transport.Send(v); err != nil {
		p.log.Debug("transcribe: downstream send failed", "error", err)
	}
}

// historyTail joins the newest stable lines into the rewrite context.
func historyTail(history []string) string {
	if len(history) > historyKeep {
		history = history[len(history)-historyKeep:]
	}
	return strings.Join(history, "\n")
}
