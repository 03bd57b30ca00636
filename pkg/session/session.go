// Package session holds the per-channel conversational identity records and
// the store that persists them.
package session

import (
	"strings"
	"time"
)

// Separator joins the parts of a composite session ID.
const Separator = "-"

// Settings keys recognized by drivers and the resolver.
const (
	SettingLanguageFrom = "language_from"
	SettingLanguageTo   = "language_to"
	SettingUpdatedAt    = "updated_at"
)

// PipeNextWithVoice asks the driver to attach a voice rendition to the next
// reply. Set when the user sent a voice note, cleared after use.
const PipeNextWithVoice = "next_with_voice"

const defaultLanguage = "en"

// Session is one conversational identity on one channel.
//
// The composite ID is unique and immutable once created. IOID is always
// uid+driver, independent of the channel session id, and routes queued
// output back to a driver identity.
type Session struct {
	ID               string         `json:"id"`
	UID              string         `json:"uid"`
	IODriver         string         `json:"io_driver"`
	IOID             string         `json:"io_id"`
	ChannelSessionID string         `json:"channel_session_id,omitempty"`
	IOData           map[string]any `json:"io_data,omitempty"`
	Alias            string         `json:"alias,omitempty"`
	Settings         map[string]any `json:"settings,omitempty"`
	Pipe             map[string]any `json:"pipe,omitempty"`

	// Routing references to other sessions. Redirect substitutes delivery
	// entirely, Forward duplicates it best-effort, Fallback compensates a
	// failed delivery. Resolved one level deep by the store.
	Redirect *Session `json:"redirect,omitempty"`
	Forward  *Session `json:"forward,omitempty"`
	Fallback *Session `json:"fallback,omitempty"`

	RedirectID string `json:"redirect_id,omitempty"`
	ForwardID  string `json:"forward_id,omitempty"`
	FallbackID string `json:"fallback_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CompositeID builds the unique session ID from its parts, skipping empty
// ones. An empty channelSessionID yields the global session for that
// (uid, driver) pair.
func CompositeID(uid, ioDriver, channelSessionID string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{uid, ioDriver, channelSessionID} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}

	return strings.Join(parts, Separator)
}

// IOIDOf derives the driver identity used for queue routing.
func IOIDOf(uid, ioDriver string) string {
	return uid + Separator + ioDriver
}

// TranslateFrom returns the language the user speaks.
func (s *Session) TranslateFrom() string {
	return s.languageSetting(SettingLanguageFrom)
}

// TranslateTo returns the language replies should be rendered in.
func (s *Session) TranslateTo() string {
	return s.languageSetting(SettingLanguageTo)
}

func (s *Session) languageSetting(key string) string {
	if s == nil || s.Settings == nil {
		return defaultLanguage
	}

	if value, ok := s.Settings[key].(string); ok && strings.TrimSpace(value) != "" {
		return value
	}

	return defaultLanguage
}

// PipeBool reads a boolean pipe flag.
func (s *Session) PipeBool(key string) bool {
	if s == nil || s.Pipe == nil {
		return false
	}

	value, ok := s.Pipe[key].(bool)
	return ok && value
}

// NowStamp is the updated_at value stored in fresh settings/pipe objects.
func NowStamp() int64 {
	return time.Now().UnixMilli()
}
