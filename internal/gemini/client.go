// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jeranaias/channelchat/internal/llm"
)

const (
	// DefaultModel handles tool calling and streaming.
	DefaultModel = "gemini-2.5-flash"

	// DefaultImageModel handles image generation and editing.
	DefaultImageModel = "gemini-2.5-flash-image"
)

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("gemini: api key not configured")

// Options configures a Client.
type Options struct {
	APIKey       string
	Model        string
	ImageModel   string
	SystemPrompt string
	Temperature  *float32

	// BaseURL and HTTPClient override the transport (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Gemini API.
type Client struct {
	genai      *genai.Client
	model      string
	imageModel string
	system     *genai.Content
	temp       *float32
	logger     *zap.Logger
}

var (
	_ llm.Generator      = (*Client)(nil)
	_ llm.ImageGenerator = (*Client)(nil)
)

// New creates a Client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}

	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	c := &Client{
		genai:      gc,
		model:      opts.Model,
		imageModel: opts.ImageModel,
		temp:       opts.Temperature,
		logger:     opts.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.imageModel == "" {
		c.imageModel = DefaultImageModel
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if opts.SystemPrompt != "" {
		c.system = &genai.Content{Parts: []*genai.Part{{Text: opts.SystemPrompt}}}
	}
	return c, nil
}

// Model returns the text model name.
func (c *Client) Model() string { return c.model }

// =============================================================================
// FUNCTION CALLING
// =============================================================================

// CallTools implements llm.Generator.
func (c *Client) CallTools(ctx context.Context, history []llm.Message, fns []llm.FunctionSpec) (llm.ToolReply, error) {
	config := c.baseConfig()
	if len(fns) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations(fns)}}
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents(history), config)
	if err != nil {
		return llm.ToolReply{}, classify(err)
	}
	if err := blocked(resp); err != nil {
		return llm.ToolReply{}, err
	}

	reply := toolReply(resp)
	c.logger.Debug("GEMINI_TOOL_ROUND",
		zap.String("model", c.model),
		zap.Int("calls", len(reply.Calls)),
		zap.Int("text_len", len(reply.Text)))
	return reply, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream implements llm.Generator. With ExecuteCode set, every chunk carries
// the structured parts received so far; otherwise chunks carry text deltas.
// Grounding metadata is attached to the chunk it arrives with.
func (c *Client) Stream(ctx context.Context, req llm.StreamRequest) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		config := c.baseConfig()
		switch {
		case req.ExecuteCode:
			config.Tools = []*genai.Tool{{CodeExecution: &genai.ToolCodeExecution{}}}
		case req.Ground:
			config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		}

		msgs := append([]llm.Message(nil), req.History...)
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Text: req.Prompt, Images: req.Images})

		var acc []llm.Part
		for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.model, contents(msgs), config) {
			if err != nil {
				yield(llm.Chunk{}, classify(err))
				return
			}
			if err := blocked(resp); err != nil {
				yield(llm.Chunk{}, err)
				return
			}

			chunk := llm.Chunk{Grounding: grounding(resp)}
			if req.ExecuteCode {
				acc = appendParts(acc, parts(resp))
				chunk.Parts = append([]llm.Part(nil), acc...)
			} else {
				chunk.Text = text(resp)
			}
			if chunk.Text == "" && len(chunk.Parts) == 0 && chunk.Grounding == nil {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// GenerateImage implements llm.ImageGenerator. A non-nil anchor is sent
// alongside the prompt as the image to edit.
func (c *Client) GenerateImage(ctx context.Context, prompt string, anchor *llm.Image) (llm.ImageResult, error) {
	msg := llm.Message{Role: llm.RoleUser, Text: prompt}
	if anchor != nil {
		msg.Images = []llm.Image{*anchor}
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.imageModel, contents([]llm.Message{msg}), config)
	if err != nil {
		return llm.ImageResult{}, classify(err)
	}
	if err := blocked(resp); err != nil {
		return llm.ImageResult{}, err
	}

	result := imageResult(resp)
	if len(result.Images) == 0 {
		return result, fmt.Errorf("gemini: no image in response")
	}
	return result, nil
}

func (c *Client) baseConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: c.system,
		Temperature:       c.temp,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// classify maps API status codes onto the llm sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %v", llm.ErrUnauthorized, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
	case code >= 500:
		return fmt.Errorf("%w: %v", llm.ErrUnavailable, err)
	default:
		return fmt.Errorf("gemini: %w", err)
	}
}

func blocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: empty response", llm.ErrBlocked)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("%w: %s", llm.ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	return nil
}
