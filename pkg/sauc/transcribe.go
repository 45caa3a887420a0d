package sauc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Transcribe performs one-shot recognition of a complete PCM buffer and
// returns the joined transcript.
//
// The whole buffer is sent up front in ChunkBytes frames with chunkInterval
// spacing, then results are collected until the final package. Results are
// bounded by recvTimeout; on expiry the partial transcript collected so far
// is returned.
func (c *Client) Transcribe(ctx context.Context, pcm []byte, effect bool) (string, error) {
	if !c.Configured() {
		return "", ErrUnconfigured
	}

	conn, logID, err := c.dial(ctx, c.config.noStreamURL)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	body, err := helloBody(effect)
	if err != nil {
		return "", wrapError(err, "sauc: marshal request")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, buildFrame(headerFullClient, body)); err != nil {
		return "", wrapError(err, "sauc: start request")
	}

	for offset := 0; offset < len(pcm); {
		take := min(ChunkBytes, len(pcm)-offset)
		last := offset+take >= len(pcm)
		header := headerAudioOnly
		if last {
			header = headerAudioLast
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, buildFrame(header, pcm[offset:offset+take])); err != nil {
			return "", wrapError(err, "sauc: send audio")
		}
		offset += take
		if !last {
			c.sleep(chunkInterval)
		}
	}
	if len(pcm) == 0 {
		// Still mark end of audio so the server answers instead of
		// waiting out the receive deadline.
		if err := conn.WriteMessage(websocket.BinaryMessage, buildFrame(headerAudioLast, nil)); err != nil {
			return "", wrapError(err, "sauc: send audio")
		}
	}

	conn.SetReadDeadline(time.Now().Add(recvTimeout))

	var texts []string
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				slog.Warn("sauc: receive timed out, returning partial transcript", "timeout", recvTimeout)
				break
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			return "", fmt.Errorf("%w: %v", ErrUpstreamClosed, err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		msg := parseServerMessage(data)
		if msg.Err != nil {
			msg.Err.LogID = logID
			return "", msg.Err
		}
		if msg.Text != "" {
			texts = append(texts, msg.Text)
		}
		if msg.Last {
			break
		}
	}

	return strings.TrimSpace(strings.Join(texts, "")), nil
}
