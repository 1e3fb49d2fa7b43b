package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/call"
	"github.com/loopline/realtime/internals/config"
	"github.com/loopline/realtime/internals/livestream"
	"github.com/loopline/realtime/internals/moderation"
	"github.com/loopline/realtime/internals/presence"
	"github.com/loopline/realtime/internals/store"
)

type published struct {
	room  string
	event bus.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, room string, event bus.Event) error {
	p.mu.Lock()
	p.events = append(p.events, published{room: room, event: event})
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e.event.EventName() == name {
			n++
		}
	}
	return n
}

type fakeEnder struct{}

func (fakeEnder) EndStream(context.Context, string) error { return nil }

type fakePeerSource struct{}

func (fakePeerSource) Peers(context.Context, string) ([]string, error) { return nil, nil }

type fakeLastSeen struct{}

func (fakeLastSeen) SetLastSeen(context.Context, string, time.Time) error { return nil }

type fakeBanRepository struct {
	mu      sync.Mutex
	records []moderation.BanRecord
}

func (f *fakeBanRepository) Create(_ context.Context, record moderation.BanRecord) error {
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	return nil
}

func newTestServer() (*Server, *recordingPublisher, *fakeBanRepository) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateLimitBurst:  1000,
			MaxIDLength:     128,
		},
	}
	logger := zap.NewNop()
	pub := &recordingPublisher{}
	bans := &fakeBanRepository{}
	s := store.NewMemory()

	calls := call.NewManager(s, pub, logger, time.Minute, time.Minute)
	streams := livestream.NewCoordinator(s, pub, fakeEnder{}, logger, time.Minute)
	tracker := presence.NewTracker(s, pub, fakePeerSource{}, fakeLastSeen{}, logger, time.Minute)
	mod := moderation.NewService(s, pub, bans, logger, time.Minute, 3)

	return NewServer(cfg, nil, calls, streams, tracker, mod, logger), pub, bans
}

func postJSON(handler http.HandlerFunc, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestInitiateCallHandler(t *testing.T) {
	server, pub, _ := newTestServer()

	w := postJSON(server.handleInitiateCall, "alice",
		`{"roomId":"r1","token":"t1","receiverId":"bob","mediaType":"video"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if pub.count(bus.EventIncomingCall) != 1 {
		t.Fatal("incoming-call was not published")
	}
}

func TestInitiateCallHandlerRejectsBadInput(t *testing.T) {
	server, _, _ := newTestServer()

	cases := []struct {
		name   string
		userID string
		body   string
		want   int
	}{
		{"missing identity", "", `{"roomId":"r1","token":"t1","receiverId":"bob","mediaType":"video"}`, http.StatusUnauthorized},
		{"bad media type", "alice", `{"roomId":"r1","token":"t1","receiverId":"bob","mediaType":"hologram"}`, http.StatusBadRequest},
		{"unsafe room id", "alice", `{"roomId":"r 1;drop","token":"t1","receiverId":"bob","mediaType":"video"}`, http.StatusBadRequest},
		{"missing receiver", "alice", `{"roomId":"r1","token":"t1","mediaType":"video"}`, http.StatusBadRequest},
		{"invalid body", "alice", `{`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		if w := postJSON(server.handleInitiateCall, tc.userID, tc.body); w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestValidateTokenHandler(t *testing.T) {
	server, _, _ := newTestServer()

	if w := postJSON(server.handleInitiateCall, "alice",
		`{"roomId":"r1","token":"t1","receiverId":"bob","mediaType":"video"}`); w.Code != http.StatusCreated {
		t.Fatalf("initiate: %d", w.Code)
	}

	if w := postJSON(server.handleValidateToken, "alice", `{"roomId":"r1","token":"t1"}`); w.Code != http.StatusOK {
		t.Errorf("caller validate: status = %d", w.Code)
	}
	if w := postJSON(server.handleValidateToken, "alice", `{"roomId":"r1","token":"wrong"}`); w.Code != http.StatusNotFound {
		t.Errorf("wrong token: status = %d", w.Code)
	}
	if w := postJSON(server.handleValidateToken, "mallory", `{"roomId":"r1","token":"t1"}`); w.Code != http.StatusForbidden {
		t.Errorf("non-party: status = %d", w.Code)
	}
}

func TestCreateReportHandlerTriggersForceRemove(t *testing.T) {
	server, pub, _ := newTestServer()

	for i := 0; i < 3; i++ {
		if w := postJSON(server.handleCreateReport, "alice",
			`{"contextId":"s1","targetId":"mallory","type":"spam"}`); w.Code != http.StatusCreated {
			t.Fatalf("report %d: status = %d", i+1, w.Code)
		}
	}
	if pub.count(bus.EventForceRemove) != 1 {
		t.Fatalf("expected 1 force-remove, got %d", pub.count(bus.EventForceRemove))
	}
}

func TestBanViewerHandler(t *testing.T) {
	server, pub, bans := newTestServer()

	w := postJSON(server.handleBanViewer, "host-1",
		`{"streamId":"s1","targetId":"mallory","reason":"spam","durationClass":"24h"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(bans.records) != 1 {
		t.Fatalf("expected 1 ban record, got %d", len(bans.records))
	}
	if pub.count(bus.EventViewerBanned) != 1 {
		t.Fatal("viewer-banned was not published")
	}

	w = postJSON(server.handleBanViewer, "host-1",
		`{"streamId":"s1","targetId":"mallory","reason":"spam","durationClass":"forever"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown duration class: status = %d", w.Code)
	}
}
