// Package tour implements the guided tour: a linear sequence of scenes that
// advances on a timer or when narration for a scene finishes.
//
// All transitions run under a single mutex. Timer and narration callbacks
// carry the generation they were issued under and are dropped when a later
// transition has superseded them, so a stale callback can never advance a
// scene it did not belong to.
package tour

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/civic-data-tour/internal/domain"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/narration"
	"github.com/couchcryptid/civic-data-tour/internal/observability"
)

const (
	// NarrationGap is the pause inserted after speech ends before advancing.
	NarrationGap = 900 * time.Millisecond
	// MinHold is the shortest wait for any scene or gap.
	MinHold = 500 * time.Millisecond
	// DefaultHold is used for scenes without a configured fallback duration.
	DefaultHold = 6 * time.Second
	// resumeDefault is used when a paused scene has no recorded timing.
	resumeDefault = 4 * time.Second
)

// Status and narration texts shown on the display surfaces.
const (
	StatusDefault     = "Press play to watch each insight highlight automatically."
	StatusStarting    = "Playing citywide highlights…"
	StatusPaused      = "Tour paused. Press resume to keep watching."
	StatusResuming    = "Resuming tour…"
	StatusStopped     = "Tour stopped. Press play to watch again."
	StatusInterrupted = "Tour paused so you can explore manually."
	StatusComplete    = "Tour complete. Scroll to Open Exploration to dig deeper."
	StatusUnavailable = "Guided tour unavailable until the data loads successfully."

	NarrationDefault  = "This narration ticker summarizes each scene while the tour runs."
	NarrationStarting = "Scene 1 is loading…"
	NarrationPaused   = "Paused—resume the tour when you're ready."
	NarrationComplete = "Tour complete. Try the Open Exploration controls to continue."
	NarrationNoData   = "Reload the page once data loads to enable the guided narration."
)

const (
	pauseLabel  = "Pause"
	resumeLabel = "Resume"

	stopReasonUser      = "user"
	stopReasonInterrupt = "interrupt"
	stopReasonData      = "data"
)

// State names reported by Snapshot.
const (
	StateIdle    = "idle"
	StatePlaying = "playing"
	StatePaused  = "paused"
)

// Broadcaster applies the active highlight set across all views.
type Broadcaster interface {
	SetActive(names []string, ctx highlight.Context) highlight.Selection
	Clear() highlight.Selection
}

// Speaker is the narration engine. Speak starts one utterance and silently
// replaces any outstanding one; done is called at most once, never from
// inside Speak, with a non-nil error when playback failed. Cancel must be
// safe to call when nothing is outstanding and suppresses done.
type Speaker interface {
	Supported() bool
	SetEnabled(enabled bool)
	Speak(text string, done func(err error))
	Cancel()
}

// Display receives the text and control surfaces. The tour only writes a
// surface when its content changes.
type Display interface {
	ShowStatus(text string)
	ShowNarration(text string)
	ShowControls(c Controls)
	ScrollTo(anchor string)
}

// EventSink receives tour lifecycle events.
type EventSink interface {
	PublishActivity(ev domain.ActivityEvent)
}

// Controls is the enabled state of the play/pause/stop buttons.
type Controls struct {
	PlayEnabled        bool   `json:"play_enabled"`
	PauseEnabled       bool   `json:"pause_enabled"`
	PauseLabel         string `json:"pause_label"`
	StopEnabled        bool   `json:"stop_enabled"`
	NarrationAvailable bool   `json:"narration_available"`
	NarrationEnabled   bool   `json:"narration_enabled"`
}

// Snapshot is a read-only copy of the tour state.
type Snapshot struct {
	State             string        `json:"state"`
	Active            bool          `json:"active"`
	Paused            bool          `json:"paused"`
	SceneIndex        int           `json:"scene_index"`
	SceneID           string        `json:"scene_id,omitempty"`
	SceneCount        int           `json:"scene_count"`
	Status            string        `json:"status"`
	Narration         string        `json:"narration"`
	Controls          Controls      `json:"controls"`
	DataReady         bool          `json:"data_ready"`
	AwaitingNarration bool          `json:"awaiting_narration"`
	TimerPending      bool          `json:"timer_pending"`
	PendingDuration   time.Duration `json:"pending_duration"`
	Remaining         time.Duration `json:"remaining"`
}

// Options configures a Tour. Speaker, Display and Events are optional.
type Options struct {
	Scenes           []domain.Scene
	Broadcaster      Broadcaster
	Speaker          Speaker
	Display          Display
	Events           EventSink
	Clock            clockwork.Clock
	Logger           *slog.Logger
	Metrics          *observability.Metrics
	NarrationEnabled bool
}

// Tour is the guided tour orchestrator.
type Tour struct {
	scenes  []domain.Scene
	hub     Broadcaster
	speaker Speaker
	display Display
	events  EventSink
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu sync.Mutex

	dataReady        bool
	narrationEnabled bool

	active                bool
	paused                bool
	index                 int
	pending               time.Duration
	remaining             time.Duration
	sceneStart            time.Time
	awaiting              bool
	pausedDuringNarration bool
	currentNarration      string

	timer        clockwork.Timer
	timerSeq     uint64
	utteranceSeq uint64
	pacedBy      string

	status    string
	narration string
	controls  Controls
	shown     bool
}

// New creates an idle Tour. The tour cannot be played until SetDataReady(true).
func New(opts Options) *Tour {
	if opts.Speaker == nil {
		opts.Speaker = unsupportedSpeaker{}
	}
	if opts.Display == nil {
		opts.Display = nopDisplay{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	t := &Tour{
		scenes:           opts.Scenes,
		hub:              opts.Broadcaster,
		speaker:          opts.Speaker,
		display:          opts.Display,
		events:           opts.Events,
		clock:            opts.Clock,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		narrationEnabled: opts.NarrationEnabled && opts.Speaker.Supported(),
		index:            -1,
	}
	t.speaker.SetEnabled(t.narrationEnabled)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.showStatus(StatusDefault)
	t.showNarration(NarrationDefault)
	t.updateControls()
	return t
}

// Play starts the tour from the first scene. It is a no-op while a tour is
// active, when no scenes are configured, or before data is ready.
func (t *Tour) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dataReady || t.active || len(t.scenes) == 0 {
		return
	}
	t.stop(stopOptions{silent: true, keepHighlights: true})

	t.active = true
	t.index = -1
	t.pacedBy = "start"
	t.updateControls()
	t.showStatus(StatusStarting)
	t.showNarration(NarrationStarting)
	t.metrics.ToursStarted.Inc()
	t.metrics.TourActive.Set(1)
	t.publish("started")
	t.logger.Info("tour started", "scenes", len(t.scenes))

	t.advance()
}

// Pause suspends a playing tour, remembering how much of the current wait is left.
func (t *Tour) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pause()
}

// Resume continues a paused tour.
func (t *Tour) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resume()
}

// Toggle pauses a playing tour or resumes a paused one.
func (t *Tour) Toggle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	if t.paused {
		t.resume()
	} else {
		t.pause()
	}
}

// Stop ends the tour and clears its highlights. Stopping an idle tour only
// releases stray timer and narration handles.
func (t *Tour) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		t.cancelPending()
		return
	}
	t.stop(stopOptions{reason: stopReasonUser})
}

// Interrupt stops an active tour because the user highlighted something
// directly. The user's highlight is left in place.
func (t *Tour) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.stop(stopOptions{reason: stopReasonInterrupt, keepHighlights: true})
}

// SetDataReady records whether the datasets the tour depends on are loaded.
// Losing data stops a running tour.
func (t *Tour) SetDataReady(ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.dataReady
	t.dataReady = ready
	switch {
	case !ready:
		if t.active {
			t.stop(stopOptions{silent: true, reason: stopReasonData})
		}
		t.showStatus(StatusUnavailable)
		t.showNarration(NarrationNoData)
	case !prev && !t.active:
		t.showStatus(StatusDefault)
		t.showNarration(NarrationDefault)
	}
	t.updateControls()
}

// SetNarrationEnabled turns narration audio on or off. Turning it on mid-scene
// speaks the current line and cancels the fallback timer; turning it off while
// speech is outstanding cancels the speech and falls back to a timer for the
// rest of the scene.
func (t *Tour) SetNarrationEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.speaker.Supported() || t.narrationEnabled == enabled {
		return
	}
	t.narrationEnabled = enabled
	t.speaker.SetEnabled(enabled)
	t.updateControls()

	if !t.active || t.paused {
		return
	}
	if enabled {
		if t.currentNarration != "" {
			t.restartNarration()
		}
		return
	}

	wasAwaiting := t.awaiting
	t.cancelNarration()
	if wasAwaiting {
		t.pacedBy = "timer"
		hold := sceneHold(t.scenes[t.index]) - t.clock.Since(t.sceneStart)
		t.startTimer(max(MinHold, hold))
	}
}

// VoiceChanged replays the current line from the start with the newly
// selected voice when the tour is actively narrating.
func (t *Tour) VoiceChanged() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.audioActive() && t.active && !t.paused && t.currentNarration != "" {
		t.restartNarration()
	}
}

// Snapshot returns a copy of the current state.
func (t *Tour) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		State:             StateIdle,
		Active:            t.active,
		Paused:            t.paused,
		SceneIndex:        t.index,
		SceneCount:        len(t.scenes),
		Status:            t.status,
		Narration:         t.narration,
		Controls:          t.controls,
		DataReady:         t.dataReady,
		AwaitingNarration: t.awaiting,
		TimerPending:      t.timer != nil,
		PendingDuration:   t.pending,
		Remaining:         t.remaining,
	}
	switch {
	case t.paused:
		s.State = StatePaused
	case t.active:
		s.State = StatePlaying
	}
	if t.index >= 0 {
		s.SceneID = t.scenes[t.index].ID
	}
	return s
}

func (t *Tour) advance() {
	if !t.active || t.paused {
		return
	}
	t.cancelPending()

	next := t.index + 1
	if next >= len(t.scenes) {
		t.finish()
		return
	}
	t.index = next
	scene := t.scenes[next]

	if scene.ScrollAnchor != "" {
		t.display.ScrollTo(scene.ScrollAnchor)
	}
	t.hub.SetActive(scene.Targets, highlight.Context{
		Kind:       highlight.KindTour,
		Originator: highlight.OriginTour,
		Message:    scene.Message,
		SceneID:    scene.ID,
	})

	line := scene.NarrationLine()
	t.currentNarration = line
	t.showStatus(fmt.Sprintf("Step %d/%d: %s", next+1, len(t.scenes), scene.Status))
	t.showNarration(line)

	t.metrics.SceneAdvances.WithLabelValues(t.pacedBy).Inc()
	t.publish("scene")
	t.logger.Debug("tour scene", "scene_id", scene.ID, "scene_index", next, "paced_by", t.pacedBy)
	t.pacedBy = "timer"

	if t.audioActive() {
		t.speak(line)
		return
	}
	t.startTimer(sceneHold(scene))
}

func (t *Tour) finish() {
	t.cancelPending()
	t.reset()
	t.hub.Clear()
	t.updateControls()
	t.showStatus(StatusComplete)
	t.showNarration(NarrationComplete)
	t.metrics.ToursFinished.Inc()
	t.metrics.TourActive.Set(0)
	t.publish("finished")
	t.logger.Info("tour finished")
}

func (t *Tour) pause() {
	if !t.active || t.paused {
		return
	}
	t.pausedDuringNarration = t.awaiting
	t.remaining = max(MinHold, t.pending-t.clock.Since(t.sceneStart))
	t.cancelPending()
	t.paused = true
	t.updateControls()

	scene := t.scenes[t.index]
	line := NarrationPaused
	switch {
	case scene.Narration != "":
		line = scene.Narration
	case scene.Message != "":
		line = scene.Message
	}
	t.showStatus(StatusPaused)
	t.showNarration(line)
	t.publish("paused")
}

func (t *Tour) resume() {
	if !t.active || !t.paused {
		return
	}
	t.paused = false
	t.updateControls()
	t.showStatus(StatusResuming)
	if t.currentNarration != "" {
		t.showNarration(t.currentNarration)
	}
	t.publish("resumed")

	duringNarration := t.pausedDuringNarration
	t.pausedDuringNarration = false
	if duringNarration && t.audioActive() {
		t.speak(t.currentNarration)
		return
	}

	delay := t.remaining
	if delay <= 0 {
		delay = t.pending
	}
	if delay <= 0 {
		delay = resumeDefault
	}
	t.startTimer(max(MinHold, delay))
}

type stopOptions struct {
	silent         bool
	keepHighlights bool
	reason         string
}

func (t *Tour) stop(opts stopOptions) {
	wasActive := t.active
	t.cancelPending()
	t.reset()
	t.updateControls()

	if wasActive && !opts.keepHighlights {
		t.hub.Clear()
	}
	if !opts.silent {
		status := StatusDefault
		if wasActive {
			status = StatusStopped
			if opts.reason == stopReasonInterrupt {
				status = StatusInterrupted
			}
		}
		t.showStatus(status)
		t.showNarration(NarrationDefault)
	}
	if wasActive && opts.reason != "" {
		t.metrics.ToursStopped.WithLabelValues(opts.reason).Inc()
		t.metrics.TourActive.Set(0)
		action := "stopped"
		if opts.reason == stopReasonInterrupt {
			action = "interrupted"
		}
		t.publish(action)
		t.logger.Info("tour stopped", "reason", opts.reason)
	}
}

func (t *Tour) reset() {
	t.active = false
	t.paused = false
	t.index = -1
	t.pending = 0
	t.remaining = 0
	t.sceneStart = time.Time{}
	t.awaiting = false
	t.pausedDuringNarration = false
	t.currentNarration = ""
}

// cancelPending releases both advancement mechanisms.
func (t *Tour) cancelPending() {
	t.stopTimer()
	t.cancelNarration()
}

func (t *Tour) startTimer(d time.Duration) {
	t.stopTimer()
	d = max(MinHold, d)
	t.pending = d
	t.remaining = d
	t.sceneStart = t.clock.Now()
	t.timerSeq++
	seq := t.timerSeq
	t.timer = t.clock.AfterFunc(d, func() { t.onTimer(seq) })
}

func (t *Tour) stopTimer() {
	t.timerSeq++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tour) onTimer(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.timerSeq || !t.active || t.paused {
		return
	}
	t.timer = nil
	t.advance()
}

// restartNarration speaks the current line again, replacing any timer.
func (t *Tour) restartNarration() {
	t.stopTimer()
	t.speak(t.currentNarration)
}

func (t *Tour) speak(text string) {
	t.cancelNarration()
	t.pending = NarrationGap
	t.remaining = NarrationGap
	t.sceneStart = t.clock.Now()
	t.awaiting = true
	t.utteranceSeq++
	seq := t.utteranceSeq
	t.speaker.Speak(text, func(err error) { t.onNarrationDone(seq, err) })
}

func (t *Tour) cancelNarration() {
	t.utteranceSeq++
	t.awaiting = false
	t.speaker.Cancel()
}

func (t *Tour) onNarrationDone(seq uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.utteranceSeq || !t.awaiting {
		return
	}
	t.awaiting = false
	unheard := errors.Is(err, narration.ErrNoListeners)
	switch {
	case unheard:
		t.logger.Debug("no narration listeners, holding scene", "scene_index", t.index)
	case err != nil:
		t.metrics.NarrationFailures.Inc()
		t.logger.Warn("narration failed, advancing anyway", "error", err, "scene_index", t.index)
	}
	if !t.active || t.paused {
		return
	}
	if unheard {
		// Nobody played the line: hold the scene as if narration were off.
		elapsed := t.clock.Since(t.sceneStart)
		t.startTimer(max(MinHold, sceneHold(t.scenes[t.index])-elapsed))
		return
	}
	t.pacedBy = "narration"
	t.startTimer(NarrationGap)
}

func (t *Tour) audioActive() bool {
	return t.narrationEnabled && t.speaker.Supported()
}

func (t *Tour) updateControls() {
	label := pauseLabel
	if t.paused {
		label = resumeLabel
	}
	c := Controls{
		PlayEnabled:        !t.active && t.dataReady && len(t.scenes) > 0,
		PauseEnabled:       t.active,
		PauseLabel:         label,
		StopEnabled:        t.active,
		NarrationAvailable: t.speaker.Supported(),
		NarrationEnabled:   t.narrationEnabled,
	}
	if t.shown && c == t.controls {
		return
	}
	t.controls = c
	t.shown = true
	t.display.ShowControls(c)
}

func (t *Tour) showStatus(text string) {
	if text == "" || text == t.status {
		return
	}
	t.status = text
	t.display.ShowStatus(text)
}

func (t *Tour) showNarration(text string) {
	if text == "" || text == t.narration {
		return
	}
	t.narration = text
	t.display.ShowNarration(text)
}

func (t *Tour) publish(action string) {
	if t.events == nil {
		return
	}
	ev := domain.NewActivityEvent(domain.ActivityTour, action)
	if t.index >= 0 {
		ev.SceneIndex = t.index
		ev.SceneID = t.scenes[t.index].ID
		ev.Names = t.scenes[t.index].Targets
		ev.Message = t.scenes[t.index].Message
	}
	ev.Originator = highlight.OriginTour
	t.events.PublishActivity(ev)
}

func sceneHold(s domain.Scene) time.Duration {
	d := s.FallbackDuration
	if d <= 0 {
		d = DefaultHold
	}
	return max(MinHold, d)
}

type unsupportedSpeaker struct{}

func (unsupportedSpeaker) Supported() bool           { return false }
func (unsupportedSpeaker) SetEnabled(bool)           {}
func (unsupportedSpeaker) Speak(string, func(error)) {}
func (unsupportedSpeaker) Cancel()                   {}

type nopDisplay struct{}

func (nopDisplay) ShowStatus(string)     {}
func (nopDisplay) ShowNarration(string)  {}
func (nopDisplay) ShowControls(Controls) {}
func (nopDisplay) ScrollTo(string)       {}
