// Package ai defines the fulfillment resolver contract and the backend
// factory. The hub treats the resolver as an opaque async function mapping
// user input to a fulfillment; backends are expected to enforce their own
// request timeouts and always return rather than hang.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	aiopenai "voxhub/pkg/ai/openai"
	"voxhub/pkg/ai/opencode"
	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/config"
	"voxhub/pkg/session"
)

// Resolver turns raw input into a fulfillment payload, given a session.
// Every method may legitimately return a fulfillment carrying only an error
// payload; a non-nil error means the resolver call itself failed.
type Resolver interface {
	Health(ctx context.Context) error
	TextRequest(ctx context.Context, text string, sess *session.Session) (*aitypes.Fulfillment, error)
	EventRequest(ctx context.Context, event string, sess *session.Session) (*aitypes.Fulfillment, error)
	FulfillmentFromBody(ctx context.Context, body json.RawMessage, sess *session.Session) (*aitypes.Fulfillment, error)

	// FulfillmentTransformer post-processes a fulfillment before driver
	// output (translation, language stamping). Identity-safe.
	FulfillmentTransformer(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session) (*aitypes.Fulfillment, error)
}

// New resolves the configured resolver backend.
func New(cfg *config.Config) (Resolver, error) {
	providerID := cfg.Resolver.Provider
	if providerID == "" {
		providerID = "openai"
	}

	slog.Default().With("component", "ai.factory").Debug("Resolving fulfillment backend", "provider", providerID)

	switch providerID {
	case "openai":
		return aiopenai.New(cfg)
	case "opencode":
		return opencode.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported resolver provider: %s", providerID)
	}
}
