package moderation

import (
	"context"
	"errors"
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

type fakeBanRepository struct {
	mu      sync.Mutex
	records []BanRecord
}

func (f *fakeBanRepository) Create(_ context.Context, record BanRecord) error {
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	return nil
}

func newTestService(window time.Duration, threshold int64) (*Service, *recordingPublisher, *fakeBanRepository) {
	pub := &recordingPublisher{}
	bans := &fakeBanRepository{}
	return NewService(store.NewMemory(), pub, bans, zap.NewNop(), window, threshold), pub, bans
}

func TestReportThresholdFiresExactlyOnce(t *testing.T) {
	svc, pub, _ := newTestService(time.Minute, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		count, err := svc.Report(ctx, "s1", "mallory")
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if count != int64(i) {
			t.Fatalf("report %d: count = %d", i, count)
		}
	}
	if n := len(pub.byName(bus.EventForceRemove)); n != 0 {
		t.Fatalf("force-remove fired below threshold: %d", n)
	}

	count, err := svc.Report(ctx, "s1", "mallory")
	if err != nil {
		t.Fatalf("third report: %v", err)
	}
	if count != 3 {
		t.Fatalf("third report count = %d", count)
	}

	removes := pub.byName(bus.EventForceRemove)
	if len(removes) != 1 {
		t.Fatalf("expected exactly 1 force-remove, got %d", len(removes))
	}
	if removes[0].room != bus.PersonalRoom("mallory") {
		t.Errorf("force-remove went to %q", removes[0].room)
	}

	// A fourth report keeps counting but stays silent.
	count, err = svc.Report(ctx, "s1", "mallory")
	if err != nil {
		t.Fatalf("fourth report: %v", err)
	}
	if count != 4 {
		t.Fatalf("fourth report count = %d", count)
	}
	if n := len(pub.byName(bus.EventForceRemove)); n != 1 {
		t.Fatalf("force-remove re-fired above threshold: %d", n)
	}
}

func TestReportWindowExpiry(t *testing.T) {
	svc, pub, _ := newTestService(30*time.Millisecond, 3)
	ctx := context.Background()

	svc.Report(ctx, "s1", "mallory")
	svc.Report(ctx, "s1", "mallory")

	time.Sleep(60 * time.Millisecond)

	count, err := svc.Report(ctx, "s1", "mallory")
	if err != nil {
		t.Fatalf("report after window: %v", err)
	}
	if count != 1 {
		t.Fatalf("counter should reset after the window, got %d", count)
	}
	if n := len(pub.byName(bus.EventForceRemove)); n != 0 {
		t.Fatalf("force-remove fired across windows: %d", n)
	}
}

func TestReportCountersAreScoped(t *testing.T) {
	svc, pub, _ := newTestService(time.Minute, 3)
	ctx := context.Background()

	// Reports in different contexts never accumulate together.
	svc.Report(ctx, "s1", "mallory")
	svc.Report(ctx, "s2", "mallory")
	svc.Report(ctx, "s3", "mallory")

	if n := len(pub.byName(bus.EventForceRemove)); n != 0 {
		t.Fatalf("force-remove fired across contexts: %d", n)
	}
}

func TestReportValidation(t *testing.T) {
	svc, _, _ := newTestService(time.Minute, 3)
	if _, err := svc.Report(context.Background(), "", "mallory"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBanViewer(t *testing.T) {
	svc, pub, bans := newTestService(time.Minute, 3)
	ctx := context.Background()

	record, err := svc.BanViewer(ctx, "s1", "mallory", "host-1", "spam", Ban24h)
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if record.ID == "" {
		t.Fatal("ban record missing id")
	}
	if len(bans.records) != 1 {
		t.Fatalf("expected 1 durable ban record, got %d", len(bans.records))
	}
	if bans.records[0].DurationClass != Ban24h {
		t.Errorf("duration class = %q", bans.records[0].DurationClass)
	}

	banned := pub.byName(bus.EventViewerBanned)
	if len(banned) != 1 {
		t.Fatalf("expected 1 viewer-banned event, got %d", len(banned))
	}
	if banned[0].room != bus.PersonalRoom("mallory") {
		t.Errorf("viewer-banned went to %q", banned[0].room)
	}
}

func TestBanViewerValidation(t *testing.T) {
	svc, _, _ := newTestService(time.Minute, 3)
	ctx := context.Background()

	if _, err := svc.BanViewer(ctx, "s1", "mallory", "host-1", "spam", DurationClass("forever")); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown duration class: expected validation error, got %v", err)
	}
	if _, err := svc.BanViewer(ctx, "", "mallory", "host-1", "spam", BanPermanent); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing stream: expected validation error, got %v", err)
	}
}
