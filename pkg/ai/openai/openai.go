package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/config"
	"voxhub/pkg/session"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// Resolver maps text and event input to fulfillments via the OpenAI
// Responses API, keeping one conversation per hub session.
type Resolver struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration

	mu            sync.Mutex
	conversations map[string]string
}

func New(cfg *config.Config) (*Resolver, error) {
	resolverCfg := cfg.Resolver.OpenAI
	apiKey := resolveAPIKey(resolverCfg)
	if apiKey == "" {
		return nil, errors.New("resolver.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model := strings.TrimSpace(resolverCfg.Model)
	if model == "" {
		return nil, errors.New("resolver.openai.model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(resolverCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(resolverCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(resolverCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(resolverCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Resolver{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
		conversations:  make(map[string]string),
	}, nil
}

func (r *Resolver) Health(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := resolverLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("resolver request started")

	if _, err := r.client.Models.List(ctx); err != nil {
		log.Debug("resolver request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("resolver request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

func (r *Resolver) TextRequest(ctx context.Context, text string, sess *session.Session) (*aitypes.Fulfillment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text is required")
	}

	return r.prompt(ctx, text, sess)
}

// EventRequest resolves a named event (alarm fired, unrecognized speech, ...)
// by prompting the model with an event instruction.
func (r *Resolver) EventRequest(ctx context.Context, event string, sess *session.Session) (*aitypes.Fulfillment, error) {
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, errors.New("event name is required")
	}

	prompt := fmt.Sprintf("The event %q was triggered for this user. Produce the assistant reply for it.", event)
	return r.prompt(ctx, prompt, sess)
}

func (r *Resolver) FulfillmentFromBody(ctx context.Context, body json.RawMessage, sess *session.Session) (*aitypes.Fulfillment, error) {
	f, err := aitypes.DecodeBody(body)
	if err != nil {
		return nil, err
	}

	return r.FulfillmentTransformer(ctx, f, sess)
}

func (r *Resolver) FulfillmentTransformer(_ context.Context, f *aitypes.Fulfillment, sess *session.Session) (*aitypes.Fulfillment, error) {
	return aitypes.StampLanguage(f, sess.TranslateTo()), nil
}

func (r *Resolver) prompt(ctx context.Context, prompt string, sess *session.Session) (*aitypes.Fulfillment, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := resolverLogger().With("operation", "prompt")
	startedAt := time.Now()

	conversationID, err := r.conversationFor(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	log.Debug("resolver request started", "session_id", sess.ID, "model", r.model, "prompt_length", len(prompt))

	response, err := r.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: r.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	})
	if err != nil {
		log.Debug("resolver request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		log.Debug("resolver request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return nil, errors.New("prompt succeeded but returned no text")
	}
	log.Debug("resolver request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return r.FulfillmentTransformer(ctx, &aitypes.Fulfillment{Text: text}, sess)
}

// conversationFor returns the OpenAI conversation bound to one hub session,
// creating it lazily on the first request.
func (r *Resolver) conversationFor(ctx context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	conversationID, ok := r.conversations[sessionID]
	r.mu.Unlock()
	if ok {
		return conversationID, nil
	}

	conversation, err := r.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		return "", fmt.Errorf("create conversation for %s: %w", sessionID, err)
	}
	if conversation == nil || strings.TrimSpace(conversation.ID) == "" {
		return "", errors.New("create conversation returned empty id")
	}

	r.mu.Lock()
	if existing, ok := r.conversations[sessionID]; ok {
		// Another request won the race; keep the first conversation.
		r.mu.Unlock()
		return existing, nil
	}
	r.conversations[sessionID] = conversation.ID
	r.mu.Unlock()

	return conversation.ID, nil
}

func resolverLogger() *slog.Logger {
	return slog.Default().With("component", "ai.openai")
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIResolverConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
