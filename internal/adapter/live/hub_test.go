package live_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/civic-data-tour/internal/adapter/live"
	"github.com/couchcryptid/civic-data-tour/internal/highlight"
	"github.com/couchcryptid/civic-data-tour/internal/narration"
	"github.com/couchcryptid/civic-data-tour/internal/observability"
	"github.com/couchcryptid/civic-data-tour/internal/tour"
)

// --- mocks ---

type completion struct {
	id  string
	err error
}

type fakeSpeech struct {
	mu          sync.Mutex
	completions []completion
	voices      [][]narration.Voice
}

func (f *fakeSpeech) Complete(id string, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, completion{id: id, err: err})
	return true
}

func (f *fakeSpeech) SetVoices(voices []narration.Voice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, voices)
}

func (f *fakeSpeech) getCompletions() []completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completion(nil), f.completions...)
}

func (f *fakeSpeech) getVoices() [][]narration.Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]narration.Voice(nil), f.voices...)
}

// --- helpers ---

func newTestHub(t *testing.T) (*live.Hub, *observability.Metrics, string) {
	t.Helper()
	return newTestHubWithOrigins(t, nil)
}

func newTestHubWithOrigins(t *testing.T, origins []string) (*live.Hub, *observability.Metrics, string) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	hub := live.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), metrics, origins)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, metrics, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *live.Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == want }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) live.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env live.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(live.Envelope{Type: msgType, Payload: raw}))
}

// --- tests ---

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub, _, url := newTestHub(t)
	hub.SetSnapshot(func() any { return map[string]string{"state": "idle"} })

	conn := dial(t, hub, url, 1)

	env := readEnvelope(t, conn)
	assert.Equal(t, live.TypeSnapshot, env.Type)
	assert.JSONEq(t, `{"state":"idle"}`, string(env.Payload))
}

func TestHub_BroadcastsDisplayAndHighlight(t *testing.T) {
	hub, _, url := newTestHub(t)
	a := dial(t, hub, url, 1)
	b := dial(t, hub, url, 2)

	hub.Render(highlight.Selection{Names: []string{"Mission"}, Message: "Mission highlighted on both maps.", Seq: 3})
	hub.ShowStatus("Scene 1 of 5")
	hub.ShowNarration("Business listings cluster downtown.")
	hub.ShowControls(tour.Controls{PauseEnabled: true, PauseLabel: "Pause", StopEnabled: true})
	hub.ScrollTo("#insight-business")

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, live.TypeHighlight, env.Type)
		var sel highlight.Selection
		require.NoError(t, json.Unmarshal(env.Payload, &sel))
		assert.Equal(t, []string{"Mission"}, sel.Names)
		assert.Equal(t, uint64(3), sel.Seq)

		env = readEnvelope(t, conn)
		assert.Equal(t, live.TypeStatus, env.Type)
		assert.JSONEq(t, `{"text":"Scene 1 of 5"}`, string(env.Payload))

		env = readEnvelope(t, conn)
		assert.Equal(t, live.TypeNarration, env.Type)

		env = readEnvelope(t, conn)
		assert.Equal(t, live.TypeControls, env.Type)
		var c tour.Controls
		require.NoError(t, json.Unmarshal(env.Payload, &c))
		assert.True(t, c.PauseEnabled)
		assert.Equal(t, "Pause", c.PauseLabel)

		env = readEnvelope(t, conn)
		assert.Equal(t, live.TypeScroll, env.Type)
		assert.JSONEq(t, `{"anchor":"#insight-business"}`, string(env.Payload))
	}
}

func TestHub_SendSpeak(t *testing.T) {
	hub, _, url := newTestHub(t)

	err := hub.SendSpeak(narration.Utterance{ID: "u1", Text: "hello"})
	require.ErrorIs(t, err, narration.ErrNoListeners)

	conn := dial(t, hub, url, 1)
	require.NoError(t, hub.SendSpeak(narration.Utterance{ID: "u2", Text: "hello", Lang: "en-US", Rate: 1, Pitch: 1}))
	hub.SendCancel("u2")

	env := readEnvelope(t, conn)
	assert.Equal(t, live.TypeSpeak, env.Type)
	var u narration.Utterance
	require.NoError(t, json.Unmarshal(env.Payload, &u))
	assert.Equal(t, "u2", u.ID)
	assert.Equal(t, "hello", u.Text)

	env = readEnvelope(t, conn)
	assert.Equal(t, live.TypeCancelSpeech, env.Type)
	assert.JSONEq(t, `{"id":"u2"}`, string(env.Payload))
}

func TestHub_InboundSpeechMessages(t *testing.T) {
	hub, _, url := newTestHub(t)
	speech := &fakeSpeech{}
	hub.SetSpeech(speech)
	conn := dial(t, hub, url, 1)

	send(t, conn, live.TypeSpeechEnd, live.SpeechResult{ID: "u1"})
	send(t, conn, live.TypeSpeechError, live.SpeechResult{ID: "u2", Error: "audio-busy"})
	send(t, conn, live.TypeSpeechEnd, live.SpeechResult{})
	send(t, conn, "unknown", nil)
	send(t, conn, live.TypeVoices, live.VoicesPayload{Voices: []narration.Voice{
		{URI: "jenny", Name: "Microsoft Jenny Online (Natural)", Lang: "en-US"},
	}})

	require.Eventually(t, func() bool { return len(speech.getVoices()) == 1 }, 2*time.Second, 5*time.Millisecond)

	got := speech.getCompletions()
	require.Len(t, got, 2, "results without an id are dropped")
	assert.Equal(t, "u1", got[0].id)
	require.NoError(t, got[0].err)
	assert.Equal(t, "u2", got[1].id)
	require.ErrorIs(t, got[1].err, live.ErrSpeechFailed)
	assert.Contains(t, got[1].err.Error(), "audio-busy")
	assert.Equal(t, "jenny", speech.getVoices()[0][0].URI)
}

func TestHub_TracksClients(t *testing.T) {
	hub, metrics, url := newTestHub(t)
	conn := dial(t, hub, url, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LiveClients), 0)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.LiveClients), 0)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, _, url := newTestHub(t)
	conn := dial(t, hub, url, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestHub_OriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  func(serverURL string) string
		wantOK  bool
	}{
		{"no origin header", nil, func(string) string { return "" }, true},
		{"same host", nil, func(u string) string { return u }, true},
		{"foreign origin rejected", nil, func(string) string { return "https://evil.example" }, false},
		{"allow-listed origin", []string{"https://dashboard.example.org"}, func(string) string { return "https://dashboard.example.org" }, true},
		{"allow-list is exact", []string{"https://dashboard.example.org"}, func(string) string { return "http://dashboard.example.org" }, false},
		{"wildcard", []string{"*"}, func(string) string { return "https://evil.example" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, _, wsURL := newTestHubWithOrigins(t, tt.allowed)
			header := http.Header{}
			if o := tt.origin("http" + strings.TrimPrefix(wsURL, "ws")); o != "" {
				header.Set("Origin", o)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if !tt.wantOK {
				require.ErrorIs(t, err, websocket.ErrBadHandshake)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				assert.Equal(t, 0, hub.Clients())
				return
			}
			require.NoError(t, err)
			defer conn.Close()
			require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
		})
	}
}
