// Package console is the interactive test-harness driver: it reads input
// lines from an optional seed file and then stdin, and prints fulfillments
// back to the terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/session"
)

// Name is the registry key for this driver.
const Name = "console"

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Driver is the console test harness. Client-only: it owns the terminal.
type Driver struct {
	cfg       config.ConsoleConfig
	bus       *bus.Bus
	registrar *session.Registrar
	in        io.Reader
	out       io.Writer
	channelID string
	log       *slog.Logger

	mu      sync.Mutex
	started bool
}

// New constructs the console driver with a fresh channel session identity.
func New(cfg config.ConsoleConfig, b *bus.Bus, registrar *session.Registrar, log *slog.Logger) (*Driver, error) {
	if log == nil {
		log = slog.Default()
	}

	return &Driver{
		cfg:       cfg,
		bus:       b,
		registrar: registrar,
		in:        os.Stdin,
		out:       os.Stdout,
		channelID: uuid.NewString(),
		log:       log.With("component", "driver.console"),
	}, nil
}

func (d *Driver) Name() string         { return Name }
func (d *Driver) OnlyClientMode() bool { return true }
func (d *Driver) OnlyServerMode() bool { return false }

// Start registers the console session and begins the read loop. Idempotent.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	sess, err := d.registrar.RegisterSession(ctx, Name, d.channelID, nil, "console")
	if err != nil {
		return fmt.Errorf("register console session: %w", err)
	}

	d.started = true
	d.log.Info("Console driver started", "session_id", sess.ID)

	go d.readLoop(ctx, sess)

	return nil
}

func (d *Driver) readLoop(ctx context.Context, sess *session.Session) {
	for _, line := range d.seedLines() {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintln(d.out, promptStyle.Render("> ")+line)
		d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Text: line}})
	}

	scanner := bufio.NewScanner(d.in)
	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Fprint(d.out, promptStyle.Render("> "))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				d.log.Error("Console input failed", "error", err)
			}
			return
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Text: text}})
	}
}

// seedLines reads the optional input file consumed before stdin.
func (d *Driver) seedLines() []string {
	path := strings.TrimSpace(d.cfg.InputFile)
	if path == "" {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		d.log.Warn("Failed to read console input file", "path", path, "error", err)
		return nil
	}

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	return lines
}

// Output prints a fulfillment to the terminal.
func (d *Driver) Output(_ context.Context, f *aitypes.Fulfillment, _ *session.Session, _ bus.Bag) (bool, error) {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return false, errors.New("console driver is not started")
	}

	processed := false

	if f.Text != "" {
		fmt.Fprintln(d.out, assistantStyle.Render(f.Text))
		processed = true
	}

	if f.Payload.URL != "" {
		fmt.Fprintln(d.out, f.Payload.URL)
		processed = true
	}

	if f.Payload.Image != nil {
		fmt.Fprintln(d.out, f.Payload.Image.URI)
		processed = true
	}

	if f.Payload.Error != nil && f.Payload.Error.Message != "" {
		fmt.Fprintln(d.out, errorStyle.Render(f.Payload.Error.Message))
		processed = true
	}

	return processed, nil
}
