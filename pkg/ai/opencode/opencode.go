package opencode

import (
	"context"
	"encoding/base64"
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

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
)

// Resolver maps text and event input to fulfillments via an OpenCode server,
// keeping one OpenCode session per hub session.
type Resolver struct {
	client         *sdk.Client
	model          string
	requestTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]string
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func New(cfg *config.Config) (*Resolver, error) {
	resolverCfg := cfg.Resolver.OpenCode
	baseURL := strings.TrimSpace(resolverCfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("resolver.opencode.base_url is required")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if authHeader, ok := buildBasicAuthHeader(resolverCfg); ok {
		opts = append(opts, option.WithHeader("Authorization", authHeader))
	}

	return &Resolver{
		client:         sdk.NewClient(opts...),
		model:          strings.TrimSpace(resolverCfg.Model),
		requestTimeout: time.Duration(resolverCfg.RequestTimeoutSeconds) * time.Second,
		sessions:       make(map[string]string),
	}, nil
}

func (r *Resolver) Health(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := resolverLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("resolver request started")

	var response healthResponse
	if err := r.client.Get(ctx, "/global/health", nil, &response); err != nil {
		log.Debug("resolver request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if !response.Healthy {
		return errors.New("opencode server reported unhealthy status")
	}
	log.Debug("resolver request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "version", response.Version)

	return nil
}

func (r *Resolver) TextRequest(ctx context.Context, text string, sess *session.Session) (*aitypes.Fulfillment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text is required")
	}

	return r.prompt(ctx, text, sess)
}

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

	remoteID, err := r.remoteSessionFor(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	log.Debug("resolver request started", "session_id", sess.ID, "model", r.model, "prompt_length", len(prompt))

	params := sdk.SessionPromptParams{
		Parts: sdk.F([]sdk.SessionPromptParamsPartUnion{
			sdk.TextPartInputParam{
				Type: sdk.F(sdk.TextPartInputTypeText),
				Text: sdk.F(prompt),
			},
		}),
	}

	if providerID, modelID, ok := parseModelRef(r.model); ok {
		params.Model = sdk.F(sdk.SessionPromptParamsModel{
			ProviderID: sdk.F(providerID),
			ModelID:    sdk.F(modelID),
		})
	}

	response, err := r.client.Session.Prompt(ctx, remoteID, params)
	if err != nil {
		log.Debug("resolver request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	text := extractText(response.Parts)
	if text == "" {
		log.Debug("resolver request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no text parts")
		return nil, errors.New("prompt succeeded but returned no text parts")
	}
	log.Debug("resolver request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return r.FulfillmentTransformer(ctx, &aitypes.Fulfillment{Text: text}, sess)
}

// remoteSessionFor returns the OpenCode session bound to one hub session,
// creating it lazily on the first request.
func (r *Resolver) remoteSessionFor(ctx context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	remoteID, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if ok {
		return remoteID, nil
	}

	created, err := r.client.Session.New(ctx, sdk.SessionNewParams{
		Title: sdk.F("voxhub:" + sessionID),
	})
	if err != nil {
		return "", fmt.Errorf("create opencode session for %s: %w", sessionID, err)
	}
	if created.ID == "" {
		return "", errors.New("create opencode session returned empty id")
	}

	r.mu.Lock()
	if existing, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[sessionID] = created.ID
	r.mu.Unlock()

	return created.ID, nil
}

func resolverLogger() *slog.Logger {
	return slog.Default().With("component", "ai.opencode")
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.requestTimeout)
}

func buildBasicAuthHeader(cfg config.OpenCodeResolverConfig) (string, bool) {
	passwordEnv := strings.TrimSpace(cfg.PasswordEnv)
	if passwordEnv == "" {
		return "", false
	}

	password := strings.TrimSpace(os.Getenv(passwordEnv))
	if password == "" {
		return "", false
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}

	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token, true
}

func parseModelRef(input string) (providerID string, modelID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(input), "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	providerID = strings.TrimSpace(parts[0])
	modelID = strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", "", false
	}

	return providerID, modelID, true
}

func extractText(parts []sdk.Part) string {
	var lines []string
	for _, part := range parts {
		if part.Type == sdk.PartTypeText {
			text := strings.TrimSpace(part.Text)
			if text != "" {
				lines = append(lines, text)
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
