package backend

import (
	"context"
	"time"
)

// anthropicAdapter wraps an httpAdapter and advertises protocol
// "anthropic" while forwarding chat/text completions over the identical
// OpenAI wire shape — this mirrors original_source's AnthropicBackend,
// which embeds OpenAICompatibleBackend as `inner` and only overrides
// protocol() and list_models(). Spec §4.1/§9 sanctions this: native
// Anthropic shaping is optional, not required.
type anthropicAdapter struct {
	inner *httpAdapter
}

func newAnthropicAdapter(cfg Config) (Adapter, error) {
	innerAny, err := newHTTPAdapter(cfg, ProtocolAnthropic)
	if err != nil {
		return nil, err
	}
	return &anthropicAdapter{inner: innerAny.(*httpAdapter)}, nil
}

func (a *anthropicAdapter) Name() string          { return a.inner.Name() }
func (a *anthropicAdapter) Protocol() Protocol     { return ProtocolAnthropic }
func (a *anthropicAdapter) Models() []string       { return a.inner.Models() }
func (a *anthropicAdapter) Capabilities() []string { return a.inner.Capabilities() }
func (a *anthropicAdapter) IsEnabled() bool        { return a.inner.IsEnabled() }
func (a *anthropicAdapter) Status() Status {
	s := a.inner.Status()
	s.Protocol = string(ProtocolAnthropic)
	return s
}

func (a *anthropicAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return a.inner.ChatCompletion(ctx, req)
}

func (a *anthropicAdapter) TextCompletion(ctx context.Context, req *TextRequest) (*TextResponse, error) {
	return a.inner.TextCompletion(ctx, req)
}

func (a *anthropicAdapter) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	return a.inner.GenerateImage(ctx, req)
}

// ListModels synthesizes from the configured model list only — no
// upstream /models call — matching original_source's AnthropicBackend.
func (a *anthropicAdapter) ListModels(ctx context.Context) (*ModelsResponse, error) {
	data := make([]ModelInfo, len(a.inner.models))
	now := time.Now().Unix()
	for i, m := range a.inner.models {
		data[i] = ModelInfo{ID: m, Object: "model", Created: now, OwnedBy: a.inner.name}
	}
	return &ModelsResponse{Object: "list", Data: data}, nil
}

func (a *anthropicAdapter) HealthProbe(ctx context.Context) bool {
	return a.inner.HealthProbe(ctx)
}
