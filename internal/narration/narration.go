// Package narration provides the speech engines the guided tour can drive.
//
// Speech synthesis happens in the browser: Remote sends each utterance to the
// connected clients and waits for one of them to report that playback ended or
// failed. Unsupported stands in when narration is switched off for the
// deployment.
package narration

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrUnknownVoice is returned when selecting a voice no client reported.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrNoListeners is returned by a Transport with no connected clients.
	ErrNoListeners = errors.New("no connected listeners")
	// ErrTimeout is reported when no client answers an utterance in time.
	ErrTimeout = errors.New("narration timed out")
	// ErrDisabled is reported for utterances requested while audio is off.
	ErrDisabled = errors.New("narration disabled")
)

// Default utterance settings.
const (
	DefaultLang  = "en-US"
	DefaultRate  = 1.0
	DefaultPitch = 1.0
)

// preferredVoices ranks voice name fragments, best first.
var preferredVoices = []string{"Neural", "Natural", "Jenny", "Guy", "Emma", "Salli", "Aria", "Google", "Microsoft"}

// Voice is a speech voice offered by a client.
type Voice struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
	Lang string `json:"lang,omitempty"`
}

// Label is the display text for a voice picker.
func (v Voice) Label() string {
	if v.Lang == "" {
		return v.Name
	}
	return fmt.Sprintf("%s (%s)", v.Name, v.Lang)
}

// Utterance is one speech request sent to clients.
type Utterance struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	VoiceURI string  `json:"voice_uri,omitempty"`
	Lang     string  `json:"lang"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
}

// Transport delivers speech commands to clients.
type Transport interface {
	SendSpeak(u Utterance) error
	SendCancel(id string)
}

// Unsupported is a speaker for environments without speech synthesis.
type Unsupported struct{}

func (Unsupported) Supported() bool           { return false }
func (Unsupported) SetEnabled(bool)           {}
func (Unsupported) Speak(string, func(error)) {}
func (Unsupported) Cancel()                   {}

type outstanding struct {
	id    string
	done  func(error)
	timer clockwork.Timer
}

// Remote speaks through browser clients. At most one utterance is outstanding;
// a new Speak replaces the previous one without completing it.
type Remote struct {
	transport Transport
	clock     clockwork.Clock
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	enabled  bool
	current  *outstanding
	voices   []Voice
	selected string
	onVoice  []func()
}

// NewRemote creates a Remote speaker. Utterances nobody answers within timeout
// complete with ErrTimeout.
func NewRemote(transport Transport, clock clockwork.Clock, timeout time.Duration, logger *slog.Logger) *Remote {
	return &Remote{
		transport: transport,
		clock:     clock,
		timeout:   timeout,
		logger:    logger,
		enabled:   true,
	}
}

// Supported reports that speech is available.
func (r *Remote) Supported() bool { return true }

// SetEnabled turns audio on or off. Disabling cancels any outstanding utterance.
func (r *Remote) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
	if !enabled {
		r.cancelLocked()
	}
}

// Enabled reports whether audio is on.
func (r *Remote) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Speak sends text to clients. done runs exactly once unless the utterance
// is cancelled or replaced, and never before Speak returns.
func (r *Remote) Speak(text string, done func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()

	id := uuid.NewString()
	if !r.enabled || strings.TrimSpace(text) == "" {
		r.failLater(id, done, ErrDisabled)
		return
	}

	u := Utterance{
		ID:       id,
		Text:     text,
		VoiceURI: r.selected,
		Lang:     DefaultLang,
		Rate:     DefaultRate,
		Pitch:    DefaultPitch,
	}
	if err := r.transport.SendSpeak(u); err != nil {
		r.failLater(id, done, fmt.Errorf("send utterance: %w", err))
		return
	}
	r.current = &outstanding{
		id:    id,
		done:  done,
		timer: r.clock.AfterFunc(r.timeout, func() { r.Complete(id, ErrTimeout) }),
	}
	r.logger.Debug("utterance sent", "utterance_id", id, "voice", r.selected)
}

// failLater registers the utterance and fails it on another goroutine, so the
// caller never sees done run inside Speak.
func (r *Remote) failLater(id string, done func(error), err error) {
	r.current = &outstanding{id: id, done: done}
	go r.Complete(id, err)
}

// Complete reports the end of an utterance. Unknown or stale IDs are ignored
// and Complete returns false.
func (r *Remote) Complete(id string, err error) bool {
	r.mu.Lock()
	cur := r.current
	if cur == nil || cur.id != id {
		r.mu.Unlock()
		return false
	}
	r.current = nil
	if cur.timer != nil {
		cur.timer.Stop()
	}
	r.mu.Unlock()

	switch {
	case errors.Is(err, ErrNoListeners):
		r.logger.Debug("utterance unheard", "utterance_id", id)
	case err != nil:
		r.logger.Warn("utterance failed", "utterance_id", id, "error", err)
	}
	cur.done(err)
	return true
}

// Cancel stops the outstanding utterance, if any, without completing it.
func (r *Remote) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
}

func (r *Remote) cancelLocked() {
	cur := r.current
	if cur == nil {
		return
	}
	r.current = nil
	if cur.timer != nil {
		cur.timer.Stop()
		r.transport.SendCancel(cur.id)
	}
}

// Outstanding returns the ID of the utterance awaiting completion.
func (r *Remote) Outstanding() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return "", false
	}
	return r.current.id, true
}

// OnVoiceChange registers fn to run whenever the selected voice changes.
func (r *Remote) OnVoiceChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onVoice = append(r.onVoice, fn)
}

// SetVoices replaces the voice catalog reported by clients. If the selected
// voice is no longer offered, the preferred voice is selected instead.
func (r *Remote) SetVoices(voices []Voice) {
	r.mu.Lock()
	r.voices = slices.Clone(voices)
	prev := r.selected
	if !slices.ContainsFunc(r.voices, func(v Voice) bool { return v.URI == r.selected }) {
		r.selected = ""
		if v, ok := PickPreferred(r.voices); ok {
			r.selected = v.URI
		}
	}
	changed := r.selected != prev
	hooks := slices.Clone(r.onVoice)
	r.mu.Unlock()

	if changed {
		r.logger.Info("narration voice selected", "voice", r.selected, "available", len(voices))
		for _, fn := range hooks {
			fn()
		}
	}
}

// Voices returns the voice catalog.
func (r *Remote) Voices() []Voice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.voices)
}

// SelectedVoice returns the selected voice URI, empty before any client reports voices.
func (r *Remote) SelectedVoice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// SelectVoice picks a voice by URI.
func (r *Remote) SelectVoice(uri string) error {
	r.mu.Lock()
	if !slices.ContainsFunc(r.voices, func(v Voice) bool { return v.URI == uri }) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownVoice, uri)
	}
	changed := r.selected != uri
	r.selected = uri
	hooks := slices.Clone(r.onVoice)
	r.mu.Unlock()

	if changed {
		for _, fn := range hooks {
			fn()
		}
	}
	return nil
}

// PickPreferred returns the highest ranked voice, falling back to the first.
func PickPreferred(voices []Voice) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	for _, keyword := range preferredVoices {
		for _, v := range voices {
			if strings.Contains(v.Name, keyword) || strings.Contains(v.URI, keyword) {
				return v, true
			}
		}
	}
	return voices[0], true
}
