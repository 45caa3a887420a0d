// Package transcribe runs real-time transcription sessions: upstream ASR
// snapshots in, throttled and optionally LLM-corrected transcript
// messages out.
package transcribe

import (
	"context"
	"iter"
)

// Transport is the downstream leg of a session, usually a client
// WebSocket.
type Transport interface {
	// PCM returns the client's audio as a lazy sequence of binary chunks
	// of arbitrary size. The sequence ends when the client disconnects or
	// the connection fails; transport errors are not surfaced here.
	PCM() iter.Seq[[]byte]

	// Send delivers one JSON-encodable message to the client. Sends after
	// the connection is gone must fail softly, because the pipeline keeps
	// emitting through its unwind.
	Send(v any) error
}

// Transcriber produces full-transcript snapshots from an audio stream.
// Each snapshot replaces the previous one; a non-nil error is the last
// element of the sequence. *sauc.Client implements this.
type Transcriber interface {
	Stream(ctx context.Context, audio iter.Seq[[]byte], effect bool) iter.Seq2[string, error]
}

// Rewriter cleans up a transcript snapshot, with the most recent stable
// lines as context. *rewrite.Client implements this.
type Rewriter interface {
	Rewrite(ctx context.Context, text, history string) (string, error)
}

// Result is one transcript message to the client. Text replaces whatever
// was sent before. Exactly one Result per session carries IsFinal, and no
// Result follows it.
type Result struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

// Closed tells the client the session ended for administrative reasons.
// It is only ever sent after the final Result.
type Closed struct {
	Closed bool   `json:"closed"`
	Reason string `json:"reason"`
}

// ReasonIdleTimeout is the reason carried by Closed when the idle watcher
// reaps a session.
const ReasonIdleTimeout = "idle_timeout"
