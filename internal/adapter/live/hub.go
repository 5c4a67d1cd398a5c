// Package live pushes tour and highlight state to browser clients over
// WebSockets and carries speech commands and their results in both directions.
package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/narration"
	"github.com/couchcryptid/civic-data-tour/internal/observability"
	"github.com/couchcryptid/civic-data-tour/internal/tour"
)

// Outbound message types.
const (
	TypeHighlight    = "highlight"
	TypeStatus       = "status"
	TypeNarration    = "narration"
	TypeControls     = "controls"
	TypeScroll       = "scroll"
	TypeSpeak        = "speak"
	TypeCancelSpeech = "cancel_speech"
	TypeSnapshot     = "snapshot"
)

// Inbound message types.
const (
	TypeSpeechEnd   = "speech_end"
	TypeSpeechError = "speech_error"
	TypeVoices      = "voices"
)

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 64 << 10
)

// ErrSpeechFailed wraps playback errors reported by a client.
var ErrSpeechFailed = errors.New("client speech synthesis failed")

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TextPayload carries status and narration text.
type TextPayload struct {
	Text string `json:"text"`
}

// ScrollPayload names the section a client should bring into view.
type ScrollPayload struct {
	Anchor string `json:"anchor"`
}

// SpeechResult is sent by clients when an utterance ends or fails.
type SpeechResult struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// VoicesPayload is a client's speech voice catalog.
type VoicesPayload struct {
	Voices []narration.Voice `json:"voices"`
}

// Speech receives speech feedback from clients.
type Speech interface {
	Complete(id string, err error) bool
	SetVoices(voices []narration.Voice)
}

// SnapshotFunc returns the full state a client receives when it connects.
type SnapshotFunc func() any

type client struct {
	send chan []byte
	addr string
}

// Hub tracks connected clients and broadcasts to all of them. It implements
// highlight.View, tour.Display and narration.Transport.
//
// Broadcasts never block: a client whose send buffer is full is disconnected.
type Hub struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	speech   Speech
	snapshot SnapshotFunc
}

// NewHub creates an empty Hub. Browsers may connect from the serving host or
// from one of allowedOrigins; "*" admits any origin.
func NewHub(logger *slog.Logger, metrics *observability.Metrics, allowedOrigins []string) *Hub {
	return &Hub{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients: make(map[*client]struct{}),
	}
}

// originChecker admits requests without an Origin header (non-browser
// clients), same-host origins and the configured allow-list.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// SetSpeech routes inbound speech messages to s.
func (h *Hub) SetSpeech(s Speech) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speech = s
}

// SetSnapshot sets the state sent to newly connected clients.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Render implements highlight.View.
func (h *Hub) Render(sel highlight.Selection) { h.broadcast(TypeHighlight, sel) }

// ShowStatus implements tour.Display.
func (h *Hub) ShowStatus(text string) { h.broadcast(TypeStatus, TextPayload{Text: text}) }

// ShowNarration implements tour.Display.
func (h *Hub) ShowNarration(text string) { h.broadcast(TypeNarration, TextPayload{Text: text}) }

// ShowControls implements tour.Display.
func (h *Hub) ShowControls(c tour.Controls) { h.broadcast(TypeControls, c) }

// ScrollTo implements tour.Display.
func (h *Hub) ScrollTo(anchor string) { h.broadcast(TypeScroll, ScrollPayload{Anchor: anchor}) }

// SendSpeak implements narration.Transport. It fails with
// narration.ErrNoListeners when no client could play the utterance.
func (h *Hub) SendSpeak(u narration.Utterance) error {
	if h.broadcast(TypeSpeak, u) == 0 {
		return narration.ErrNoListeners
	}
	return nil
}

// SendCancel implements narration.Transport.
func (h *Hub) SendCancel(id string) {
	h.broadcast(TypeCancelSpeech, SpeechResult{ID: id})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	c := &client{send: make(chan []byte, sendBuffer), addr: r.RemoteAddr}
	h.register(c)
	h.logger.Info("live client connected", "remote", c.addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(conn, c)
	}()

	h.writeLoop(conn, c, done)
	h.unregister(c)
	h.logger.Info("live client disconnected", "remote", c.addr)
}

// register adds c and queues the connect snapshot ahead of any broadcast.
// The snapshot is taken before the client joins; a change landing in between
// reaches the client with the next update.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	fn := h.snapshot
	h.mu.Unlock()

	var first []byte
	if fn != nil {
		msg, err := encode(TypeSnapshot, fn())
		if err != nil {
			h.logger.Error("encode snapshot", "error", err)
		} else {
			first = msg
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if first != nil {
		c.send <- first
	}
	h.clients[c] = struct{}{}
	h.metrics.LiveClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.LiveClients.Dec()
}

// broadcast queues a message for every client and returns how many received it.
func (h *Hub) broadcast(msgType string, payload any) int {
	msg, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error("encode live message", "type", msgType, "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			h.logger.Warn("live client too slow, disconnecting", "remote", c.addr)
			h.removeLocked(c)
		}
	}
	return sent
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("live write failed", "remote", c.addr, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(conn *websocket.Conn, c *client) {
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("live read failed", "remote", c.addr, "error", err)
			}
			return
		}
		h.dispatch(c, data)
	}
}

// dispatch handles one inbound message. It runs without the hub lock so the
// speech engine may broadcast in response.
func (h *Hub) dispatch(c *client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("malformed live message", "remote", c.addr, "error", err)
		return
	}

	h.mu.Lock()
	speech := h.speech
	h.mu.Unlock()
	if speech == nil {
		return
	}

	switch env.Type {
	case TypeSpeechEnd, TypeSpeechError:
		var res SpeechResult
		if err := json.Unmarshal(env.Payload, &res); err != nil || res.ID == "" {
			h.logger.Warn("malformed speech result", "remote", c.addr, "type", env.Type)
			return
		}
		var speechErr error
		if env.Type == TypeSpeechError {
			speechErr = fmt.Errorf("%w: %s", ErrSpeechFailed, res.Error)
		}
		if !speech.Complete(res.ID, speechErr) {
			h.logger.Debug("stale speech result", "utterance_id", res.ID)
		}
	case TypeVoices:
		var p VoicesPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("malformed voice list", "remote", c.addr, "error", err)
			return
		}
		speech.SetVoices(p.Voices)
	default:
		h.logger.Debug("ignoring live message", "remote", c.addr, "type", env.Type)
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
