package backend

import (
	"context"
	"os"
	"strings"

	"github.com/Rikinshah787/agentos/internal/parser"
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// OpenAICompatBuffered is the "OpenAI-compatible, buffered" variant (spec
// §4.6): a single, non-streaming chat completion.
type OpenAICompatBuffered struct {
	g         *genkit.Genkit
	modelName string
}

// NewOpenAICompatBuffered initializes a Genkit instance with the
// compat_oai plugin against providerName/baseURL, matching the teacher's
// Brain wiring for "openai"/"openai_compatible"/"openrouter".
func NewOpenAICompatBuffered(ctx context.Context, providerName, baseURL, apiKey, modelID string) *OpenAICompatBuffered {
	g := genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
		Provider: providerName,
		APIKey:   apiKey,
		BaseURL:  baseURL,
	}))
	return &OpenAICompatBuffered{g: g, modelName: providerName + "/" + modelID}
}

func (a *OpenAICompatBuffered) Execute(ctx context.Context, systemPrompt, userPrompt string) (Response, error) {
	ctx, cancel := withCallTimeout(ctx)
	defer cancel()

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
	)
	if err != nil {
		return Response{}, ClassifyTransportError(err)
	}

	text := resp.Text()
	return Response{
		Text:   text,
		Tokens: usageOrEstimate(resp, text),
		Model:  a.modelName,
	}, nil
}

// NIMStreaming is the "OpenAI-compatible, streaming-required" variant for
// NVIDIA-hosted models (spec §4.6): non-streaming calls against this host
// must be considered hung, so Execute always streams internally and
// concatenates delta content before returning.
type NIMStreaming struct {
	g         *genkit.Genkit
	modelName string
	// ExtraBody carries the extra_body.chat_template_kwargs passthrough
	// this host requires, e.g. {"thinking": true} or
	// {"enable_thinking": true, "clear_thinking": false}.
	ExtraBody map[string]any
}

// NewNIMStreaming wires the compat_oai plugin against the NIM endpoint.
func NewNIMStreaming(ctx context.Context, baseURL, apiKey, modelID string, extraBody map[string]any) *NIMStreaming {
	g := genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
		Provider: "nim",
		APIKey:   apiKey,
		BaseURL:  baseURL,
	}))
	return &NIMStreaming{g: g, modelName: "nim/" + modelID, ExtraBody: extraBody}
}

func (a *NIMStreaming) Execute(ctx context.Context, systemPrompt, userPrompt string) (Response, error) {
	ctx, cancel := withCallTimeout(ctx)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
	}
	if len(a.ExtraBody) > 0 {
		opts = append(opts, ai.WithConfig(map[string]any{
			"extra_body": map[string]any{"chat_template_kwargs": a.ExtraBody},
		}))
	}

	stream := genkit.GenerateStream(ctx, a.g, opts...)

	var text strings.Builder
	var finalResp *ai.ModelResponse
	for streamVal, err := range stream {
		if err != nil {
			return Response{}, ClassifyTransportError(err)
		}
		if streamVal.Chunk != nil {
			for _, part := range streamVal.Chunk.Content {
				if part.Kind == ai.PartText && part.Text != "" {
					text.WriteString(part.Text)
				}
			}
		}
		if streamVal.Done {
			finalResp = streamVal.Response
		}
	}

	full := text.String()
	tokens := parser.EstimateTokens(full)
	if finalResp != nil {
		if finalText := finalResp.Text(); finalText != "" && full == "" {
			full = finalText
		}
		if u := usageOrEstimate(finalResp, full); u > 0 {
			tokens = u
		}
	}

	return Response{Text: full, Tokens: tokens, Model: a.modelName}, nil
}

// AnthropicAdapter is the dedicated Anthropic "thinking-model" shape (spec
// §4.6): distinct wire shape normalized to the common {text, tokens} pair.
type AnthropicAdapter struct {
	g         *genkit.Genkit
	modelName string
}

func NewAnthropicAdapter(ctx context.Context, apiKey, modelID string) *AnthropicAdapter {
	g := genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
		APIKey:  apiKey,
		BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
	}))
	return &AnthropicAdapter{g: g, modelName: "anthropic/" + modelID}
}

func (a *AnthropicAdapter) Execute(ctx context.Context, systemPrompt, userPrompt string) (Response, error) {
	ctx, cancel := withCallTimeout(ctx)
	defer cancel()

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
	)
	if err != nil {
		return Response{}, ClassifyTransportError(err)
	}
	text := resp.Text()
	return Response{Text: text, Tokens: usageOrEstimate(resp, text), Model: a.modelName}, nil
}

// GeminiAdapter is the dedicated Google Gemini shape (spec §4.6).
type GeminiAdapter struct {
	g         *genkit.Genkit
	modelName string
}

func NewGeminiAdapter(ctx context.Context, apiKey, modelID string) *GeminiAdapter {
	_ = os.Setenv("GEMINI_API_KEY", apiKey)
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel("googleai/"+modelID),
	)
	return &GeminiAdapter{g: g, modelName: "googleai/" + modelID}
}

func (a *GeminiAdapter) Execute(ctx context.Context, systemPrompt, userPrompt string) (Response, error) {
	ctx, cancel := withCallTimeout(ctx)
	defer cancel()

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
	)
	if err != nil {
		return Response{}, ClassifyTransportError(err)
	}
	text := resp.Text()
	return Response{Text: text, Tokens: usageOrEstimate(resp, text), Model: a.modelName}, nil
}

// BridgeAdapter is the inert fifth variant (spec §4.6 addition):
// cursor-bridge/copilot-bridge agents are recognized but rejected with
// ErrOutOfScope before any I/O — these providers execute from the host
// IDE, not the core.
type BridgeAdapter struct{}

func NewBridgeAdapter() *BridgeAdapter { return &BridgeAdapter{} }

func (a *BridgeAdapter) Execute(ctx context.Context, systemPrompt, userPrompt string) (Response, error) {
	return Response{}, ErrBridgeOutOfScope
}

// usageOrEstimate reads the provider-reported token usage when present,
// falling back to the ceil(len(text)/4) estimate (spec §4.6/§6).
func usageOrEstimate(resp *ai.ModelResponse, text string) int {
	if resp != nil && resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		return resp.Usage.TotalTokens
	}
	return parser.EstimateTokens(text)
}
