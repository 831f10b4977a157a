package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/sourcewatch/internal/model"
)

// fakeRegistry is an in-memory SourceRegistry recording bookkeeping calls.
type fakeRegistry struct {
	mu      sync.Mutex
	sources []model.Source
	listErr error
	checked map[string]time.Time
	updated map[string]time.Time
}

func newFakeRegistry(sources ...model.Source) *fakeRegistry {
	return &fakeRegistry{
		sources: sources,
		checked: make(map[string]time.Time),
		updated: make(map[string]time.Time),
	}
}

func (f *fakeRegistry) ListAll(ctx context.Context) ([]model.Source, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sources, nil
}

func (f *fakeRegistry) MarkChecked(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked[id] = ts
	return nil
}

func (f *fakeRegistry) MarkUpdated(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = ts
	return nil
}

func (f *fakeRegistry) checkedAt(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.checked[id]
	return ts, ok
}

// fakeSnapshots records appends and serves a fixed latest snapshot.
type fakeSnapshots struct {
	mu      sync.Mutex
	latest  map[string]*model.Snapshot
	appends []string
	order   *opLog
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{latest: make(map[string]*model.Snapshot)}
}

func (f *fakeSnapshots) GetLatest(ctx context.Context, sourceID string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[sourceID], nil
}

func (f *fakeSnapshots) Append(ctx context.Context, sourceID string, payload []byte, ts time.Time) error {
	f.mu.Lock()
	f.appends = append(f.appends, sourceID)
	f.latest[sourceID] = &model.Snapshot{SourceID: sourceID, Payload: payload, CapturedAt: ts}
	f.mu.Unlock()
	if f.order != nil {
		f.order.record("append:" + sourceID)
	}
	return nil
}

func (f *fakeSnapshots) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appends)
}

// fakeFetcher serves fixed payloads or errors per source.
type fakeFetcher struct {
	payloads map[string]any
	errs     map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, src model.Source) (any, error) {
	if err, ok := f.errs[src.ID]; ok {
		return nil, err
	}
	return f.payloads[src.ID], nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []model.ChangeEvent
	err    error
	order  *opLog
}

func (f *fakePublisher) Publish(ctx context.Context, ev model.ChangeEvent) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	if f.order != nil {
		f.order.record("publish:" + ev.SourceID)
	}
	return nil
}

func (f *fakePublisher) published() []model.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ChangeEvent(nil), f.events...)
}

// opLog records cross-component operation ordering.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func newScheduler(t *testing.T, reg *fakeRegistry, snaps *fakeSnapshots, fetcher *fakeFetcher, pub *fakePublisher) *Scheduler {
	t.Helper()
	cfg := Config{
		TickInterval:        time.Hour, // ticks triggered manually
		Concurrency:         5,
		DefaultPollInterval: time.Minute,
	}
	s := New(cfg, reg, snaps, fetcher, pub, nil)
	s.ctx = context.Background()
	return s
}

func TestTick_PerSourceIsolation(t *testing.T) {
	reg := newFakeRegistry(
		model.Source{ID: "s1", Kind: model.KindJSON, URL: "https://s1"},
		model.Source{ID: "s2", Kind: model.KindJSON, URL: "https://s2"},
	)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{
		payloads: map[string]any{"s2": map[string]any{"v": 1.0}},
		errs:     map[string]error{"s1": errors.New("connection refused")},
	}
	pub := &fakePublisher{}

	s := newScheduler(t, reg, snaps, fetcher, pub)
	s.tick()

	// s2 still produced a snapshot write and a publish.
	if snaps.appendCount() != 1 {
		t.Errorf("appends = %d, want 1", snaps.appendCount())
	}
	events := pub.published()
	if len(events) != 1 || events[0].SourceID != "s2" {
		t.Fatalf("published = %+v, want one event for s2", events)
	}

	// Both sources were marked checked, including the failing one.
	for _, id := range []string{"s1", "s2"} {
		if _, ok := reg.checkedAt(id); !ok {
			t.Errorf("source %s was not marked checked", id)
		}
	}
}

func TestTick_SkipsSourcesWithoutLocation(t *testing.T) {
	reg := newFakeRegistry(
		model.Source{ID: "no-url", Kind: model.KindJSON},
	)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{payloads: map[string]any{"no-url": "x"}}
	pub := &fakePublisher{}

	s := newScheduler(t, reg, snaps, fetcher, pub)
	s.tick()

	if snaps.appendCount() != 0 {
		t.Error("location-less source should not be polled")
	}
	if _, ok := reg.checkedAt("no-url"); ok {
		t.Error("skipped source should not be marked checked")
	}
}

func TestTick_DueComputation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := newFakeRegistry(
		model.Source{ID: "due", Kind: model.KindJSON, URL: "https://a",
			PollInterval: 5 * time.Minute, LastChecked: now.Add(-6 * time.Minute)},
		model.Source{ID: "fresh", Kind: model.KindJSON, URL: "https://b",
			PollInterval: 5 * time.Minute, LastChecked: now.Add(-time.Minute)},
	)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{payloads: map[string]any{"due": "x", "fresh": "y"}}
	pub := &fakePublisher{}

	s := newScheduler(t, reg, snaps, fetcher, pub)
	s.now = func() time.Time { return now }
	s.tick()

	if _, ok := reg.checkedAt("due"); !ok {
		t.Error("due source was not polled")
	}
	if _, ok := reg.checkedAt("fresh"); ok {
		t.Error("fresh source should not have been polled")
	}
}

func TestPollSource_InitialThenNoChange(t *testing.T) {
	src := model.Source{ID: "s1", Kind: model.KindJSON, URL: "https://s1"}
	reg := newFakeRegistry(src)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{payloads: map[string]any{"s1": map[string]any{"v": 1.0}}}
	pub := &fakePublisher{}

	s := newScheduler(t, reg, snaps, fetcher, pub)

	// First poll: initial event.
	changed, err := s.pollSource(src)
	if err != nil {
		t.Fatalf("pollSource failed: %v", err)
	}
	if !changed {
		t.Fatal("first poll should report a change")
	}
	events := pub.published()
	if len(events) != 1 || events[0].Changes.Type != model.ChangeInitial {
		t.Fatalf("events = %+v, want one initial event", events)
	}

	// Second poll with the same payload: nothing.
	changed, err = s.pollSource(src)
	if err != nil {
		t.Fatalf("pollSource failed: %v", err)
	}
	if changed {
		t.Error("unchanged payload should not report a change")
	}
	if snaps.appendCount() != 1 {
		t.Errorf("appends = %d, want 1 (no write on no-change)", snaps.appendCount())
	}
	if len(pub.published()) != 1 {
		t.Error("no event should be published on no-change")
	}
}

func TestPollSource_UpdateClassification(t *testing.T) {
	src := model.Source{ID: "s1", Kind: model.KindSheet, SheetID: "s1"}
	reg := newFakeRegistry(src)
	snaps := newFakeSnapshots()
	prev, _ := json.Marshal([][]any{{"A", "B"}})
	snaps.latest["s1"] = &model.Snapshot{SourceID: "s1", Payload: prev}

	fetcher := &fakeFetcher{payloads: map[string]any{"s1": [][]any{{"A", "C"}}}}
	pub := &fakePublisher{}

	s := newScheduler(t, reg, snaps, fetcher, pub)

	changed, err := s.pollSource(src)
	if err != nil {
		t.Fatalf("pollSource failed: %v", err)
	}
	if !changed {
		t.Fatal("differing payload should report a change")
	}

	events := pub.published()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Changes.Type != model.ChangeUpdate {
		t.Errorf("change type = %q, want update", events[0].Changes.Type)
	}
	if events[0].SourceType != model.SourceTypeSheet {
		t.Errorf("sourceType = %q, want sheet", events[0].SourceType)
	}
}

func TestPollSource_WriteBeforePublish(t *testing.T) {
	order := &opLog{}
	src := model.Source{ID: "s1", Kind: model.KindJSON, URL: "https://s1"}
	reg := newFakeRegistry(src)
	snaps := newFakeSnapshots()
	snaps.order = order
	fetcher := &fakeFetcher{payloads: map[string]any{"s1": "v2"}}
	pub := &fakePublisher{order: order}

	s := newScheduler(t, reg, snaps, fetcher, pub)

	if _, err := s.pollSource(src); err != nil {
		t.Fatalf("pollSource failed: %v", err)
	}

	ops := order.all()
	if len(ops) != 2 || ops[0] != "append:s1" || ops[1] != "publish:s1" {
		t.Errorf("ops = %v, want [append:s1 publish:s1]", ops)
	}
}

func TestPollSource_PublishFailureKeepsSnapshot(t *testing.T) {
	src := model.Source{ID: "s1", Kind: model.KindJSON, URL: "https://s1"}
	reg := newFakeRegistry(src)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{payloads: map[string]any{"s1": "v1"}}
	pub := &fakePublisher{err: errors.New("queue unavailable")}

	s := newScheduler(t, reg, snaps, fetcher, pub)

	if _, err := s.pollSource(src); err == nil {
		t.Fatal("pollSource should surface the publish failure")
	}

	// The snapshot landed, so the next poll sees no further change: the
	// delivery is lost, not duplicated.
	if snaps.appendCount() != 1 {
		t.Fatalf("appends = %d, want 1", snaps.appendCount())
	}
	pub.err = nil
	changed, err := s.pollSource(src)
	if err != nil {
		t.Fatalf("second pollSource failed: %v", err)
	}
	if changed {
		t.Error("second poll should see no change")
	}
}

func TestTick_RepeatedTimeoutsNeverCrash(t *testing.T) {
	reg := newFakeRegistry(
		model.Source{ID: "slow", Kind: model.KindJSON, URL: "https://slow"},
	)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{errs: map[string]error{"slow": context.DeadlineExceeded}}
	pub := &fakePublisher{}

	s := newScheduler(t, reg, snaps, fetcher, pub)

	for i := 0; i < 3; i++ {
		s.tick()
		if _, ok := reg.checkedAt("slow"); !ok {
			t.Fatalf("tick %d: source not marked checked", i)
		}
		// Reset so the next tick sees the source as due again.
		reg.mu.Lock()
		delete(reg.checked, "slow")
		reg.mu.Unlock()
	}

	if len(pub.published()) != 0 {
		t.Error("no events should be published for a timing-out source")
	}
}

func TestStartStop(t *testing.T) {
	reg := newFakeRegistry(
		model.Source{ID: "s1", Kind: model.KindJSON, URL: "https://s1"},
	)
	snaps := newFakeSnapshots()
	fetcher := &fakeFetcher{payloads: map[string]any{"s1": "v"}}
	pub := &fakePublisher{}

	cfg := Config{
		TickInterval:        50 * time.Millisecond,
		Concurrency:         2,
		DefaultPollInterval: time.Nanosecond,
	}
	s := New(cfg, reg, snaps, fetcher, pub, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(pub.published()) == 0 {
		t.Error("running scheduler should have published the initial event")
	}
}
