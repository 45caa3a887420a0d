// Package sauc is a client for the Volcengine SAUC streaming speech
// recognition service (大模型流式语音识别).
//
// # Authentication
//
//	client := sauc.NewClient(appKey, accessKey)
//	// Headers:
//	//   X-Api-App-Key: {app_key}
//	//   X-Api-Access-Key: {access_key}
//	//   X-Api-Resource-Id: {resource_id}
//	//   X-Api-Connect-Id: {unique per connection}
//
// # Recognition
//
// Stream performs incremental recognition over a live PCM sequence:
//
//	for text, err := range client.Stream(ctx, audio, false) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(text) // full-transcript snapshot, replaces the previous one
//	}
//
// Transcribe performs one-shot recognition of a complete PCM buffer.
//
// Both expect 16 kHz 16-bit little-endian mono PCM.
package sauc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultStreamURL   = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"
	defaultNoStreamURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
)

// DefaultResourceID is the duration-billed SeedASR 2.0 streaming resource.
const DefaultResourceID = "volc.seedasr.sauc.duration"

const (
	// SampleRate is the PCM sample rate the service expects.
	SampleRate = 16000

	// ChunkBytes is the audio frame payload size: 200 ms of 16 kHz
	// 16-bit mono PCM.
	ChunkBytes = 6400
)

// chunkInterval spaces consecutive audio frames so the upstream sees
// roughly real-time pacing.
const chunkInterval = 50 * time.Millisecond

// recvTimeout bounds the wait for results after the last audio frame of a
// non-streaming request.
const recvTimeout = 30 * time.Second

// Client represents a SAUC API client.
type Client struct {
	config *clientConfig

	// sleep paces audio sends; swapped in tests.
	sleep func(time.Duration)
}

// clientConfig represents client configuration.
type clientConfig struct {
	appKey      string
	accessKey   string
	resourceID  string
	streamURL   string
	noStreamURL string
	dialer      *websocket.Dialer
}

// Option represents a configuration option function.
type Option func(*clientConfig)

// NewClient creates a SAUC client.
//
// appKey and accessKey come from the Volcano Engine console. They are not
// checked here; recognition calls fail with ErrUnconfigured when either is
// empty.
func NewClient(appKey, accessKey string, opts ...Option) *Client {
	config := &clientConfig{
		appKey:      appKey,
		accessKey:   accessKey,
		resourceID:  DefaultResourceID,
		streamURL:   defaultStreamURL,
		noStreamURL: defaultNoStreamURL,
		dialer:      websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(config)
	}

	return &Client{
		config: config,
		sleep:  time.Sleep,
	}
}

// WithResourceID overrides the billing resource ID.
//
// Default: volc.seedasr.sauc.duration
func WithResourceID(id string) Option {
	return func(c *clientConfig) {
		if id != "" {
			c.resourceID = id
		}
	}
}

// WithStreamURL overrides the streaming endpoint URL.
func WithStreamURL(url string) Option {
	return func(c *clientConfig) {
		c.streamURL = url
	}
}

// WithNoStreamURL overrides the non-streaming endpoint URL.
func WithNoStreamURL(url string) Option {
	return func(c *clientConfig) {
		c.noStreamURL = url
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// Configured reports whether both credentials are present.
func (c *Client) Configured() bool {
	return c.config.appKey != "" && c.config.accessKey != ""
}

// wsHeaders returns the authentication headers for one connection.
func (c *Client) wsHeaders() http.Header {
	headers := http.Header{}
	headers.Set("X-Api-App-Key", c.config.appKey)
	headers.Set("X-Api-Access-Key", c.config.accessKey)
	headers.Set("X-Api-Resource-Id", c.config.resourceID)
	headers.Set("X-Api-Connect-Id", connectID())
	return headers
}

// connectID builds a per-connection ID from the wall clock: milliseconds
// since epoch plus a 5-digit sub-millisecond counter. The server does not
// interpret it beyond uniqueness.
func connectID() string {
	t := time.Now().UnixNano()
	return fmt.Sprintf("%d-%05d", t/1e6, (t%1e6/10)%100000)
}

// dial opens an authenticated WebSocket and returns the connection plus the
// server-side log ID from the handshake response.
func (c *Client) dial(ctx context.Context, url string) (*websocket.Conn, string, error) {
	conn, resp, err := c.config.dialer.DialContext(ctx, url, c.wsHeaders())
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			return nil, "", fmt.Errorf("sauc: connect failed: %w, status=%s, body=%s", err, resp.Status, body)
		}
		return nil, "", fmt.Errorf("sauc: connect failed: %w", err)
	}
	logID := ""
	if resp != nil {
		logID = resp.Header.Get("X-Tt-Logid")
	}
	return conn, logID, nil
}
