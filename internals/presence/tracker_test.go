package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
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

func (p *recordingPublisher) byName(name string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []published
	for _, e := range p.events {
		if e.event.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fakePeerSource struct {
	peers []string
}

func (f *fakePeerSource) Peers(context.Context, string) ([]string, error) {
	return f.peers, nil
}

type fakeLastSeen struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	calls int
}

func (f *fakeLastSeen) SetLastSeen(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string]time.Time)
	}
	f.seen[userID] = at
	f.calls++
	f.mu.Unlock()
	return nil
}

func newTestTracker(ttl time.Duration, peers ...string) (*Tracker, *recordingPublisher, *fakeLastSeen, store.Store) {
	pub := &recordingPublisher{}
	lastSeen := &fakeLastSeen{}
	s := store.NewMemory()
	t := NewTracker(s, pub, &fakePeerSource{peers: peers}, lastSeen, zap.NewNop(), ttl)
	return t, pub, lastSeen, s
}

func TestConnectedTwoWayExchange(t *testing.T) {
	tracker, pub, _, s := newTestTracker(time.Minute, "bob", "carol")
	ctx := context.Background()

	// bob is already online, carol is not.
	if err := s.SetEX(ctx, store.OnlineKey("bob"), "1", time.Minute); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	peers, err := tracker.Connected(ctx, "alice")
	if err != nil {
		t.Fatalf("connected: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %v", peers)
	}

	if exists, _ := s.Exists(ctx, store.OnlineKey("alice")); !exists {
		t.Fatal("online record for alice missing")
	}

	online := pub.byName(bus.EventPresenceOnline)
	toRoom := make(map[string][]string)
	for _, e := range online {
		toRoom[e.room] = append(toRoom[e.room], e.event.(bus.PresenceOnline).UserID)
	}

	// Every peer hears that alice came online.
	if got := toRoom[bus.PersonalRoom("bob")]; len(got) != 1 || got[0] != "alice" {
		t.Errorf("bob's room got %v", got)
	}
	if got := toRoom[bus.PersonalRoom("carol")]; len(got) != 1 || got[0] != "alice" {
		t.Errorf("carol's room got %v", got)
	}
	// Alice hears back only about peers currently online.
	if got := toRoom[bus.PersonalRoom("alice")]; len(got) != 1 || got[0] != "bob" {
		t.Errorf("alice's room got %v", got)
	}
}

func TestDisconnected(t *testing.T) {
	tracker, pub, lastSeen, s := newTestTracker(time.Minute, "bob")
	ctx := context.Background()

	peers, err := tracker.Connected(ctx, "alice")
	if err != nil {
		t.Fatalf("connected: %v", err)
	}

	if err := tracker.Disconnected(ctx, "alice", peers); err != nil {
		t.Fatalf("disconnected: %v", err)
	}

	if exists, _ := s.Exists(ctx, store.OnlineKey("alice")); exists {
		t.Fatal("online record should be removed on clean disconnect")
	}
	if lastSeen.calls != 1 {
		t.Fatalf("expected 1 last-seen write, got %d", lastSeen.calls)
	}

	offline := pub.byName(bus.EventPresenceOffline)
	if len(offline) != 1 {
		t.Fatalf("expected 1 presence-offline event, got %d", len(offline))
	}
	if offline[0].room != bus.PersonalRoom("bob") {
		t.Errorf("presence-offline went to %q", offline[0].room)
	}
	if offline[0].event.(bus.PresenceOffline).LastSeen == 0 {
		t.Error("presence-offline missing lastSeen timestamp")
	}
}

func TestHeartbeatRefreshesTTL(t *testing.T) {
	tracker, _, _, s := newTestTracker(40 * time.Millisecond)
	ctx := context.Background()

	if _, err := tracker.Connected(ctx, "alice"); err != nil {
		t.Fatalf("connected: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	if err := tracker.Heartbeat(ctx, "alice"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	if exists, _ := s.Exists(ctx, store.OnlineKey("alice")); !exists {
		t.Fatal("heartbeat should have refreshed the online record")
	}

	time.Sleep(60 * time.Millisecond)
	if exists, _ := s.Exists(ctx, store.OnlineKey("alice")); exists {
		t.Fatal("online record should expire without heartbeats")
	}
}
