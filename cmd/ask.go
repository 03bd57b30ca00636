package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"voxhub/pkg/ai"
	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/config"
	"voxhub/pkg/session"

	"github.com/spf13/cobra"
)

var askText string

// askCmd sends one prompt through the configured resolver, or starts an
// interactive chat when no prompt is given. It bypasses drivers entirely.
var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a prompt or start an interactive chat",
	Long:  "Loads VoxHub configuration, connects to the configured resolver, and sends one prompt or starts an interactive chat.",
	Run: func(cmd *cobra.Command, args []string) {
		prompt := resolveAskPrompt(args)

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		resolver, err := ai.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize resolver: %v\n", err)
			return
		}

		ctx := context.Background()
		if err := resolver.Health(ctx); err != nil {
			fmt.Printf("resolver health check failed: %v\n", err)
			return
		}

		sess := cliSession(cfg.UID)

		if prompt != "" {
			runSinglePrompt(ctx, resolver, sess, prompt)
			return
		}

		runInteractive(ctx, resolver, sess)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "prompt", "p", "", "prompt text to send")
}

// cliSession builds a transient console session so the resolver keeps
// conversation state across the interactive loop. Nothing is persisted.
func cliSession(uid string) *session.Session {
	const channelID = "cli"

	return &session.Session{
		ID:               session.CompositeID(uid, "console", channelID),
		UID:              uid,
		IODriver:         "console",
		IOID:             session.IOIDOf(uid, "console"),
		ChannelSessionID: channelID,
	}
}

func resolveAskPrompt(args []string) string {
	if value := strings.TrimSpace(askText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func runSinglePrompt(ctx context.Context, resolver ai.Resolver, sess *session.Session, prompt string) {
	f, err := resolver.TextRequest(ctx, prompt, sess)
	if err != nil {
		fmt.Printf("prompt failed: %v\n", err)
		return
	}

	printAssistantMessage(f)
}

func runInteractive(ctx context.Context, resolver ai.Resolver, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("👨🏻 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if isExitCommand(prompt) {
			return
		}

		f, err := resolver.TextRequest(ctx, prompt, sess)
		if err != nil {
			fmt.Printf("prompt failed: %v\n", err)
			continue
		}

		printAssistantMessage(f)
	}
}

func printAssistantMessage(f *aitypes.Fulfillment) {
	if f == nil {
		return
	}

	text := f.Text
	if text == "" && f.Payload.Error != nil {
		text = f.Payload.Error.Message
	}

	lines := assistantLines(text)
	for _, line := range lines {
		fmt.Printf("🔊 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
