// Package rewrite cleans up speech transcripts with an LLM.
//
// The client talks to Volcano Ark through its OpenAI-compatible chat
// completions endpoint. Rewrite never fails from the caller's point of
// view: any API problem degrades to returning the input unchanged.
package rewrite

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultBaseURL is the Ark OpenAI-compatible endpoint.
const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// systemPrompt steers the model into pure transcript cleanup. Kept
// verbatim from the prompt tuned against Doubao models.
const systemPrompt = `Role: 你是一个极简、高效的语义编辑器。 Task: 将输入的原始、凌乱的语音转录文本转化为流畅的书面表达。 Rules:

去噪： 自动删除“额、那个、然后”等口癖和无意义重复。

逻辑修正： 识别并执行口头修正（例如：“明天——不对，是后天”，最终只保留“后天”的语义）。

语境适配： 默认保持自然口吻；若注明，则自动切换对应风格。

输出限制： 仅输出处理后的最终文本，**严禁任何解释或开场白**
`

const temperature = 0.3

// Client rewrites ASR transcripts via Ark chat completions.
type Client struct {
	client  *openai.Client
	model   string
	enabled bool
}

type config struct {
	baseURL    string
	httpClient *http.Client
}

// Option represents a configuration option function.
type Option func(*config)

// WithBaseURL overrides the Ark endpoint, e.g. for a different region or a
// test server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// NewClient creates an Ark rewrite client.
//
// With an empty apiKey or modelID the client stays disabled: Rewrite then
// returns its input unchanged.
func NewClient(apiKey, modelID string, opts ...Option) *Client {
	cfg := config{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	c := &Client{
		model:   modelID,
		enabled: apiKey != "" && modelID != "",
	}
	if !c.enabled {
		return c
	}

	oc := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		option.WithHTTPClient(cfg.httpClient),
	)
	c.client = &oc
	return c
}

// Configured reports whether the client has credentials and a model.
func (c *Client) Configured() bool {
	return c.enabled
}

// Rewrite cleans up asrText, using history (the most recent stable lines,
// newline-joined) as context.
//
// The contract is graceful: a disabled client or any API failure returns
// asrText unchanged with a nil error; whitespace-only input collapses to
// "".
func (c *Client) Rewrite(ctx context.Context, asrText, history string) (string, error) {
	if !c.enabled {
		return asrText, nil
	}
	if strings.TrimSpace(asrText) == "" {
		return "", nil
	}

	userContent := "当前待纠错: " + asrText
	if history != "" {
		userContent = "历史文本: " + history + "\n\n当前待纠错: " + asrText
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userContent),
		},
		Temperature: param.NewOpt(temperature),
	}
	// Ark extension, not part of the OpenAI surface: skip deep thinking to
	// keep rewrite latency inside the correction window.
	params.SetExtraFields(map[string]any{
		"thinking": map[string]any{"type": "disabled"},
	})

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if s := chunk.Choices[0].Delta.Content; s != "" {
			out.WriteString(s)
		}
	}
	if err := stream.Err(); err != nil {
		slog.Warn("rewrite: falling back to raw transcript", "error", err)
		return asrText, nil
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return asrText, nil
	}
	return text, nil
}
