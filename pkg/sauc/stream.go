package sauc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// helloBody is the full client request payload that opens a session.
// effect enables semantic disfluency cleanup (enable_ddc) upstream.
func helloBody(effect bool) ([]byte, error) {
	body := map[string]any{
		"audio": map[string]any{
			"format":  "pcm",
			"codec":   "raw",
			"rate":    SampleRate,
			"bits":    16,
			"channel": 1,
		},
		"request": map[string]any{
			"model_name":  "bigmodel",
			"enable_itn":  true,
			"enable_punc": true,
			"enable_ddc":  effect,
		},
	}
	return json.Marshal(body)
}

// streamSession is one live recognition stream. A sender goroutine paces
// audio frames upstream while the receiver decodes transcript snapshots.
type streamSession struct {
	conn  *websocket.Conn
	logID string
	sleep func(time.Duration)

	closeChan chan struct{}
	closeOnce sync.Once
	sendDone  chan struct{}
}

func (s *streamSession) writeFrame(header uint32, payload []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, buildFrame(header, payload))
}

func (s *streamSession) sendHello(effect bool) error {
	body, err := helloBody(effect)
	if err != nil {
		return err
	}
	return s.writeFrame(headerFullClient, body)
}

// sendAudio drains the PCM sequence, regrouping it into ChunkBytes frames
// with chunkInterval spacing, and always flushes a final AUDIO_LAST frame,
// empty when no audio remains. Write errors stop the loop; the receive
// side decides the session outcome.
func (s *streamSession) sendAudio(audio iter.Seq[[]byte]) {
	defer close(s.sendDone)

	var buf bytes.Buffer
	for chunk := range audio {
		select {
		case <-s.closeChan:
			return
		default:
		}
		buf.Write(chunk)
		for buf.Len() >= ChunkBytes {
			if err := s.writeFrame(headerAudioOnly, buf.Next(ChunkBytes)); err != nil {
				slog.Warn("sauc: audio send failed", "error", err)
				return
			}
			s.sleep(chunkInterval)
		}
	}
	if err := s.writeFrame(headerAudioLast, buf.Bytes()); err != nil {
		slog.Warn("sauc: last audio send failed", "error", err)
	}
}

// close shuts the connection and waits for the sender to finish. The
// connection is closed first so a sender blocked in a write unblocks; a
// sender blocked on the audio sequence unblocks when the caller terminates
// that sequence.
func (s *streamSession) close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.conn.Close()
		<-s.sendDone
	})
}

// Stream performs streaming recognition over a live PCM sequence.
//
// The returned sequence yields full-transcript snapshots, each replacing
// the previous one, with consecutive duplicates suppressed. It ends when
// the upstream sends its final package or closes cleanly; an abnormal
// close or an error frame ends it with a non-nil error as the last
// element. Cancelling ctx ends the sequence without an error.
//
// The audio sequence is consumed from a separate goroutine; it must
// terminate (naturally or via ctx) for Stream to fully unwind.
func (c *Client) Stream(ctx context.Context, audio iter.Seq[[]byte], effect bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !c.Configured() {
			yield("", ErrUnconfigured)
			return
		}

		conn, logID, err := c.dial(ctx, c.config.streamURL)
		if err != nil {
			yield("", err)
			return
		}
		s := &streamSession{
			conn:      conn,
			logID:     logID,
			sleep:     c.sleep,
			closeChan: make(chan struct{}),
			sendDone:  make(chan struct{}),
		}

		if err := s.sendHello(effect); err != nil {
			conn.Close()
			yield("", wrapError(err, "sauc: start request"))
			return
		}

		go s.sendAudio(audio)
		defer s.close()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		last := ""
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					yield("", fmt.Errorf("%w: %v", ErrUpstreamClosed, err))
				}
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}

			msg := parseServerMessage(data)
			if msg.Err != nil {
				msg.Err.LogID = logID
				yield("", msg.Err)
				return
			}
			if msg.Text != "" && msg.Text != last {
				slog.Debug("sauc: snapshot", "text", msg.Text)
				if !yield(msg.Text, nil) {
					return
				}
				last = msg.Text
			}
			if msg.Last {
				return
			}
		}
	}
}
