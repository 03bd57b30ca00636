package opencode

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/config"
	"voxhub/pkg/session"

	sdk "github.com/sst/opencode-sdk-go"
)

func TestNewRequiresBaseURL(t *testing.T) {
	cfg := &config.Config{}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for a missing base URL")
	}
}

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
		wantOK       bool
	}{
		{input: "anthropic/claude-sonnet", wantProvider: "anthropic", wantModel: "claude-sonnet", wantOK: true},
		{input: " openai / gpt-4o ", wantProvider: "openai", wantModel: "gpt-4o", wantOK: true},
		{input: "modelonly", wantOK: false},
		{input: "/model", wantOK: false},
		{input: "provider/", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		providerID, modelID, ok := parseModelRef(tt.input)
		if ok != tt.wantOK {
			t.Fatalf("parseModelRef(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
		}
		if ok && (providerID != tt.wantProvider || modelID != tt.wantModel) {
			t.Fatalf("parseModelRef(%q) = (%q, %q)", tt.input, providerID, modelID)
		}
	}
}

func TestBuildBasicAuthHeader(t *testing.T) {
	if _, ok := buildBasicAuthHeader(config.OpenCodeResolverConfig{}); ok {
		t.Fatal("no password env must yield no header")
	}

	t.Setenv("OPENCODE_TEST_PASSWORD", "secret")
	header, ok := buildBasicAuthHeader(config.OpenCodeResolverConfig{
		Username:    "otto",
		PasswordEnv: "OPENCODE_TEST_PASSWORD",
	})
	if !ok {
		t.Fatal("expected a header")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if string(raw) != "otto:secret" {
		t.Fatalf("credentials = %q", raw)
	}
}

func TestExtractText(t *testing.T) {
	parts := []sdk.Part{
		{Type: sdk.PartTypeText, Text: " first "},
		{Type: sdk.PartTypeTool},
		{Type: sdk.PartTypeText, Text: "second"},
		{Type: sdk.PartTypeText, Text: "   "},
	}

	if got := extractText(parts); got != "first\nsecond" {
		t.Fatalf("extractText = %q", got)
	}

	if got := extractText(nil); got != "" {
		t.Fatalf("extractText(nil) = %q", got)
	}
}

func TestFulfillmentTransformerStampsLanguage(t *testing.T) {
	r := &Resolver{}
	sess := &session.Session{Settings: map[string]any{session.SettingLanguageTo: "it"}}

	f, err := r.FulfillmentTransformer(context.Background(), &aitypes.Fulfillment{Text: "ciao"}, sess)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if f.Payload.Language != "it" {
		t.Fatalf("language = %q, want it", f.Payload.Language)
	}
}

func TestTextRequestRejectsEmptyInput(t *testing.T) {
	r := &Resolver{}
	if _, err := r.TextRequest(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected an error for empty text")
	}
	if _, err := r.EventRequest(context.Background(), "", nil); err == nil {
		t.Fatal("expected an error for empty event")
	}
}
