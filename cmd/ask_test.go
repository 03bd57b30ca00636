package cmd

import (
	"reflect"
	"testing"

	aitypes "voxhub/pkg/ai/types"
)

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "exit", want: true},
		{input: " quit ", want: true},
		{input: ":q", want: true},
		{input: "EXIT", want: true},
		{input: "hello", want: false},
		{input: "quit now", want: false},
	}

	for _, tt := range tests {
		if got := isExitCommand(tt.input); got != tt.want {
			t.Fatalf("isExitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAssistantLines(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOut []string
	}{
		{name: "single line", input: "hello", wantOut: []string{"hello"}},
		{name: "multi line", input: "one\ntwo", wantOut: []string{"one", "two"}},
		{name: "trim outer whitespace", input: "  one\ntwo  ", wantOut: []string{"one", "two"}},
		{name: "empty input", input: "   ", wantOut: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assistantLines(tt.input)
			if !reflect.DeepEqual(got, tt.wantOut) {
				t.Fatalf("assistantLines(%q) = %#v, want %#v", tt.input, got, tt.wantOut)
			}
		})
	}
}

func TestResolveAskPrompt(t *testing.T) {
	t.Cleanup(func() { askText = "" })

	askText = ""
	if got := resolveAskPrompt([]string{"turn", "on", "the", "lights"}); got != "turn on the lights" {
		t.Fatalf("prompt = %q", got)
	}

	askText = "from flag"
	if got := resolveAskPrompt([]string{"from args"}); got != "from flag" {
		t.Fatalf("flag must win: %q", got)
	}

	askText = ""
	if got := resolveAskPrompt(nil); got != "" {
		t.Fatalf("prompt = %q, want empty", got)
	}
}

func TestCLISession(t *testing.T) {
	sess := cliSession("otto")
	if sess.ID != "otto-console-cli" {
		t.Fatalf("id = %q", sess.ID)
	}
	if sess.IOID != "otto-console" {
		t.Fatalf("io_id = %q", sess.IOID)
	}
}

func TestPrintAssistantMessageHandlesNil(t *testing.T) {
	// Must not panic.
	printAssistantMessage(nil)
	printAssistantMessage(&aitypes.Fulfillment{})
}
