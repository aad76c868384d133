package llm

import (
	"context"
	"strings"
	"time"

	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/metrics"
)

const (
	// InitErrorFragment is the single fragment emitted when the backend
	// client could not be constructed at startup.
	InitErrorFragment = "Error: El modelo de IA no está configurado correctamente."

	// StreamErrorFragment is the terminal fragment emitted when the
	// backend fails mid-stream.
	StreamErrorFragment = "Hubo un problema al contactar al servicio de IA."

	promptSeparator = "\n\n---\n\n"
)

// GeneratorConfig configures the generation wrapper.
type GeneratorConfig struct {
	Provider    Provider
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generator drives streaming model calls for the answer pipeline. It is
// constructed once at service startup; a construction failure is recorded
// and reported per request as a synthetic fragment instead of being
// retried. Stream never returns an error: every backend failure surfaces
// as text content, and the fragment sequence always ends.
type Generator struct {
	client  Client
	cfg     GeneratorConfig
	initErr error
	logger  *logger.Logger
}

// NewGenerator builds the backend client once and records the outcome.
func NewGenerator(cfg GeneratorConfig, log *logger.Logger) *Generator {
	g := &Generator{cfg: cfg, logger: log}

	client, err := NewClient(cfg.Provider, cfg.APIKey)
	if err != nil {
		log.Error("failed to initialize model client", "provider", cfg.Provider, "error", err)
		g.initErr = err
		return g
	}
	g.client = client
	log.Info("model client initialized", "provider", client.Name(), "model", cfg.Model)
	return g
}

// Ready reports whether the backend client was constructed successfully.
func (g *Generator) Ready() bool {
	return g.client != nil
}

// Stream seeds a chat with the prior turns, sends the system prompt and
// final prompt as one user turn, and forwards each backend fragment to
// emit in emission order. It returns the concatenation of all fragments
// that reached the client. An emit error (the client is gone) stops
// consumption without synthetic content.
func (g *Generator) Stream(ctx context.Context, systemPrompt, finalPrompt string, history []model.ChatMessage, emit func(fragment string) error) string {
	var acc strings.Builder

	send := func(fragment string) bool {
		if err := emit(fragment); err != nil {
			return false
		}
		acc.WriteString(fragment)
		metrics.StreamFragmentsTotal.Inc()
		return true
	}

	if g.client == nil {
		send(InitErrorFragment)
		return acc.String()
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == model.RoleModel {
			role = "assistant"
		}
		messages = append(messages, ChatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, ChatMessage{
		Role:    "user",
		Content: systemPrompt + promptSeparator + finalPrompt,
	})

	start := time.Now()
	var emitFailed bool
	resp, err := g.client.CompleteStream(ctx, &CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}, func(fragment string, index int) error {
		if err := emit(fragment); err != nil {
			emitFailed = true
			return err
		}
		acc.WriteString(fragment)
		metrics.StreamFragmentsTotal.Inc()
		return nil
	})

	if err != nil {
		if emitFailed || ctx.Err() != nil {
			// The client went away; nobody is reading synthetic content.
			return acc.String()
		}
		g.logger.Error("model stream failed", "provider", g.client.Name(), "error", err)
		metrics.RecordLLMStream(g.cfg.Model, "error", time.Since(start).Seconds())
		send(StreamErrorFragment)
		return acc.String()
	}

	metrics.RecordLLMStream(resp.Model, "success", time.Since(start).Seconds())
	return acc.String()
}
