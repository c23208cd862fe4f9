package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/finrouter/pkg/infra/tracing"
	"github.com/kart-io/finrouter/pkg/llm"
)

type instrumentedChat struct {
	llm.ChatProvider
	m *Metrics
}

// InstrumentChat records every Generate call of p, as a counter and as a span.
func InstrumentChat(p llm.ChatProvider, m *Metrics) llm.ChatProvider {
	return &instrumentedChat{ChatProvider: p, m: m}
}

func (c *instrumentedChat) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (*llm.GenerateResponse, error) {
	ctx, span := tracing.Start(ctx, "llm.generate",
		attribute.String("llm.provider", c.Name()),
		attribute.Int("llm.max_tokens", opts.MaxTokens),
	)
	start := time.Now()
	resp, err := c.ChatProvider.Generate(ctx, prompt, opts)
	c.m.RecordLLMCall(c.Name(), time.Since(start), err)
	if resp != nil {
		span.SetAttributes(attribute.Int("llm.output_tokens", resp.Usage.CompletionTokens))
	}
	tracing.End(span, err)
	return resp, err
}
