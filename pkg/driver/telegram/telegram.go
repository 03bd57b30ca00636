package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	aitypes "voxhub/pkg/ai/types"
	"voxhub/pkg/bus"
	"voxhub/pkg/config"
	"voxhub/pkg/session"
)

// Name is the registry key for this driver.
const Name = "telegram"
const messagePreviewLimit = 240

// eventSpeechUnrecognized is emitted when a voice note cannot be transcribed.
const eventSpeechUnrecognized = "io_sr_unrecognized"

// Transcriber turns a voice-note file URL into text. Speech recognition is
// an external integration; a nil transcriber makes voice notes resolve to
// the unrecognized-speech event.
type Transcriber func(ctx context.Context, fileURL, language string) (string, error)

// Driver bridges Telegram chats into the hub.
type Driver struct {
	cfg        config.TelegramConfig
	bus        *bus.Bus
	registrar  *session.Registrar
	transcribe Transcriber
	allowFrom  map[string]struct{}
	activator  *regexp.Regexp
	log        *slog.Logger

	mu      sync.Mutex
	started bool
	bot     *telego.Bot
}

// New validates Telegram configuration and constructs the driver.
func New(cfg config.TelegramConfig, b *bus.Bus, registrar *session.Registrar, transcribe Transcriber, log *slog.Logger) (*Driver, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Driver{
		cfg:        cfg,
		bus:        b,
		registrar:  registrar,
		transcribe: transcribe,
		allowFrom:  allowFromSet(cfg.AllowFrom),
		activator:  activatorRegex(cfg.ActivatorName),
		log:        log.With("component", "driver.telegram"),
	}, nil
}

func (d *Driver) Name() string         { return Name }
func (d *Driver) OnlyClientMode() bool { return false }
func (d *Driver) OnlyServerMode() bool { return false }

// Start begins long polling and feeds updates onto the bus. Idempotent.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	bot, err := telego.NewBot(strings.TrimSpace(d.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	d.bot = bot
	d.started = true
	d.log.Info("Telegram driver started")

	go d.consumeUpdates(ctx, updates)

	return nil
}

func (d *Driver) consumeUpdates(ctx context.Context, updates <-chan telego.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					d.log.Error("Telegram updates channel closed")
				}
				return
			}

			if update.Message == nil {
				continue
			}

			d.handleMessage(ctx, update.Message)
		}
	}
}

func (d *Driver) handleMessage(ctx context.Context, message *telego.Message) {
	if message.From == nil {
		d.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !d.senderAllowed(senderID) {
		d.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	isGroup := message.Chat.Type != "private"

	sess, err := d.registrar.RegisterSession(ctx, Name, chatID, chatData(message.Chat), chatAlias(message.Chat))
	if err != nil {
		d.log.Error("Failed to register session", "chat_id", chatID, "error", err)
		return
	}

	switch {
	case strings.TrimSpace(message.Text) != "":
		d.handleText(ctx, sess, message, isGroup)
	case message.Voice != nil:
		d.handleVoice(ctx, sess, message, isGroup)
	case len(message.Photo) > 0:
		d.handlePhoto(ctx, sess, message, isGroup)
	default:
		d.log.Debug("Ignoring unsupported message type", "chat_id", chatID)
	}
}

func (d *Driver) handleText(ctx context.Context, sess *session.Session, message *telego.Message, isGroup bool) {
	text := strings.TrimSpace(message.Text)

	// In groups the assistant only reacts when addressed by name.
	if isGroup && !d.activated(text) {
		d.log.Debug("Skipping group input without activator", "session_id", sess.ID)
		return
	}

	d.log.Info("Received message", "session_id", sess.ID, "content", previewText(text))
	d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Text: text}})
}

func (d *Driver) handleVoice(ctx context.Context, sess *session.Session, message *telego.Message, isGroup bool) {
	// The user spoke; respond in kind on the next turn.
	if err := d.registrar.Store().UpdatePipe(ctx, sess.ID, map[string]any{session.PipeNextWithVoice: true}); err != nil {
		d.log.Warn("Failed to set voice pipe flag", "session_id", sess.ID, "error", err)
	}

	if d.transcribe == nil {
		if !isGroup {
			d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Event: eventSpeechUnrecognized}})
		}
		return
	}

	fileURL, err := d.fileURL(ctx, message.Voice.FileID)
	if err != nil {
		d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Err: err})
		return
	}

	text, err := d.transcribe(ctx, fileURL, sess.TranslateFrom())
	if err != nil {
		if !isGroup {
			d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Event: eventSpeechUnrecognized}})
		}
		return
	}

	if isGroup && !d.activated(text) {
		return
	}

	d.log.Info("Received voice message", "session_id", sess.ID, "content", previewText(text))
	d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Text: text}})
}

func (d *Driver) handlePhoto(ctx context.Context, sess *session.Session, message *telego.Message, isGroup bool) {
	if isGroup {
		return
	}

	photo := message.Photo[len(message.Photo)-1]
	fileURL, err := d.fileURL(ctx, photo.FileID)
	if err != nil {
		d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Err: err})
		return
	}

	d.log.Info("Received photo", "session_id", sess.ID)
	d.bus.PublishInput(ctx, bus.InputEvent{Session: sess, Params: bus.InputParams{Image: fileURL}})
}

// Output renders a fulfillment into the Telegram chat bound to the session.
// Each payload object is attempted independently; a failure on one object
// does not stop the others.
func (d *Driver) Output(ctx context.Context, f *aitypes.Fulfillment, sess *session.Session, _ bus.Bag) (bool, error) {
	d.mu.Lock()
	bot := d.bot
	d.mu.Unlock()
	if bot == nil {
		return false, errors.New("telegram driver is not started")
	}

	chatID, err := chatIDFromSession(sess)
	if err != nil {
		return false, err
	}

	processed := false
	var firstErr error
	record := func(err error) {
		if err == nil {
			processed = true
			return
		}
		d.log.Error("Failed to send telegram payload", "session_id", sess.ID, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	markup := replyMarkup(f.Payload.Replies)

	if f.Text != "" {
		record(d.sendText(ctx, bot, chatID, f.Text, markup))

		if sess.PipeBool(session.PipeNextWithVoice) || f.Payload.IncludeVoice {
			// Voice rendition needs a TTS integration; clear the flag so the
			// request does not leak into later turns.
			if err := d.registrar.Store().UpdatePipe(ctx, sess.ID, map[string]any{session.PipeNextWithVoice: false}); err != nil {
				d.log.Warn("Failed to clear voice pipe flag", "session_id", sess.ID, "error", err)
			}
			d.log.Debug("Voice rendition requested but no TTS is configured", "session_id", sess.ID)
		}
	}

	if f.Payload.URL != "" {
		record(d.sendText(ctx, bot, chatID, f.Payload.URL, markup))
	}

	if f.Payload.Image != nil {
		_ = bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionUploadPhoto))
		_, err := bot.SendPhoto(ctx, tu.Photo(tu.ID(chatID), tu.FileFromURL(f.Payload.Image.URI)))
		record(err)
	}

	if f.Payload.Audio != nil {
		_, err := bot.SendAudio(ctx, tu.Audio(tu.ID(chatID), tu.FileFromURL(f.Payload.Audio.URI)))
		record(err)
	}

	if f.Payload.Video != nil {
		_ = bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionUploadVideo))
		_, err := bot.SendVideo(ctx, tu.Video(tu.ID(chatID), tu.FileFromURL(f.Payload.Video.URI)))
		record(err)
	}

	if f.Payload.Document != nil {
		_, err := bot.SendDocument(ctx, tu.Document(tu.ID(chatID), tu.FileFromURL(f.Payload.Document.URI)))
		record(err)
	}

	if f.Payload.Error != nil && f.Payload.Error.Message != "" {
		record(d.sendText(ctx, bot, chatID, f.Payload.Error.Message, markup))
	}

	if !processed && firstErr != nil {
		return false, firstErr
	}

	return processed, nil
}

func (d *Driver) sendText(ctx context.Context, bot *telego.Bot, chatID int64, text string, markup *telego.ReplyKeyboardMarkup) error {
	_ = bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))

	params := tu.Message(tu.ID(chatID), text)
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}

	_, err := bot.SendMessage(ctx, params)
	return err
}

func (d *Driver) fileURL(ctx context.Context, fileID string) (string, error) {
	file, err := d.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("resolve telegram file %s: %w", fileID, err)
	}

	return d.bot.FileDownloadURL(file.FilePath), nil
}

func (d *Driver) senderAllowed(senderID string) bool {
	if len(d.allowFrom) == 0 {
		return true
	}

	_, ok := d.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func (d *Driver) activated(text string) bool {
	return d.activator != nil && d.activator.MatchString(text)
}

// replyMarkup builds a one-time reply keyboard from suggested replies.
func replyMarkup(replies []string) *telego.ReplyKeyboardMarkup {
	if len(replies) == 0 {
		return nil
	}

	row := make([]telego.KeyboardButton, 0, len(replies))
	for _, reply := range replies {
		row = append(row, telego.KeyboardButton{Text: reply})
	}

	return &telego.ReplyKeyboardMarkup{
		Keyboard:        [][]telego.KeyboardButton{row},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

func chatIDFromSession(sess *session.Session) (int64, error) {
	raw := sess.ChannelSessionID
	if value, ok := sess.IOData["chat_id"].(string); ok && value != "" {
		raw = value
	}

	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session %s has no usable telegram chat id: %w", sess.ID, err)
	}

	return chatID, nil
}

func chatData(chat telego.Chat) map[string]any {
	return map[string]any{
		"chat_id": strconv.FormatInt(chat.ID, 10),
		"type":    chat.Type,
		"title":   chat.Title,
	}
}

func chatAlias(chat telego.Chat) string {
	if chat.Type == "private" {
		return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}

	return chat.Title
}

func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// activatorRegex matches the assistant name as a whole word, case-insensitive.
func activatorRegex(name string) *regexp.Regexp {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
}

func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
