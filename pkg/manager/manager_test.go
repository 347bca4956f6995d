package manager

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/slotsave/pkg/codec"
	"github.com/jllopis/slotsave/pkg/config"
	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/slot"
	"github.com/jllopis/slotsave/pkg/state"
	"github.com/jllopis/slotsave/pkg/storage"
)

type stats struct {
	Health int      `json:"health"`
	Items  []string `json:"items,omitempty"`
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func saveConfig() config.Save {
	return config.Save{Folder: "saves", Extension: ".sav", Debug: true}
}

func newTestManager(t *testing.T, store storage.Storage, opts ...Option) *Manager {
	t.Helper()
	m, err := New(saveConfig(), store, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func mustCreate(t *testing.T, m *Manager, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := m.CreateSlot(context.Background(), name); err != nil {
			t.Fatalf("CreateSlot(%s) failed: %v", name, err)
		}
	}
}

func mustActivate(t *testing.T, m *Manager, name string, savePrevious, loadNew bool) {
	t.Helper()
	ok, err := m.SetActiveSlot(context.Background(), name, savePrevious, loadNew)
	if err != nil || !ok {
		t.Fatalf("SetActiveSlot(%s) = %v, %v", name, ok, err)
	}
}

func equalTypes(a, b []EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewValidation(t *testing.T) {
	if _, err := New(saveConfig(), nil); err == nil {
		t.Fatal("expected error for nil storage")
	}
	cfg := saveConfig()
	cfg.Extension = "sav"
	_, err := New(cfg, storage.NewMemory())
	if !saveerrors.HasCode(err, saveerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for bad extension, got %v", err)
	}
	if _, err := New(saveConfig(), storage.NewMemory(), WithClock(nil)); err == nil {
		t.Fatal("expected error for nil clock")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, true)

	live := stats{Health: 10, Items: []string{"sword"}}
	gold := 3
	m.Register(state.NewParticipant("player", state.Bind("stats", &live), state.Bind("gold", &gold)))

	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	live = stats{}
	gold = 0
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if live.Health != 10 || len(live.Items) != 1 || live.Items[0] != "sword" {
		t.Errorf("stats not restored: %+v", live)
	}
	if gold != 3 {
		t.Errorf("gold not restored: %d", gold)
	}
}

func TestSaveRejectsKeyValueCollisions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	m := newTestManager(t, store)
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, true)

	live := stats{Health: 7}
	m.Register(state.NewParticipantWithID("pid", "player", state.Bind("stats", &live)))
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for _, key := range []string{"pid", "a.sav"} {
		m.KV().SetInt(key, 1)
		if err := m.Save(ctx); !saveerrors.HasCode(err, saveerrors.CodeInvalidInput) {
			t.Fatalf("Save with kv key %q: expected invalid input, got %v", key, err)
		}
		m.KV().DeleteKey(key)
	}

	live = stats{}
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if live.Health != 7 {
		t.Errorf("expected saved health 7, got %d", live.Health)
	}
	if _, ok, err := m.GetSlot(ctx, "a"); err != nil || !ok {
		t.Errorf("expected slot metadata to survive, got %v %v", ok, err)
	}
}

func TestSaveKeepsUnregisteredParticipants(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newTestManager(t, mem)
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, false)

	hero := stats{Health: 5}
	chest := stats{Items: []string{"key"}}
	heroP := state.NewParticipant("hero", state.Bind("stats", &hero))
	chestP := state.NewParticipant("chest", state.Bind("stats", &chest))
	m.Register(heroP)
	m.Register(chestP)
	if err := m.Save(ctx); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	m.Unregister(chestP)
	hero.Health = 7
	if err := m.Save(ctx); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	c, err := mem.Read(ctx, "a")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if _, ok := c.Participant(chestP.ID()); !ok {
		t.Fatal("unregistered participant entry was erased")
	}

	// Re-registering picks the preserved state back up.
	chest = stats{}
	m.Register(chestP)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(chest.Items) != 1 || chest.Items[0] != "key" {
		t.Errorf("chest state lost: %+v", chest)
	}
	if hero.Health != 7 {
		t.Errorf("expected hero health 7, got %d", hero.Health)
	}
}

func TestNoActiveSlotGatesIO(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newTestManager(t, mem)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save without active slot returned %v", err)
	}
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load without active slot returned %v", err)
	}
	if reads, writes := mem.Ops(); reads != 0 || writes != 0 {
		t.Errorf("expected no storage I/O, got %d reads %d writes", reads, writes)
	}
	if got := rec.types(); len(got) != 0 {
		t.Errorf("expected no events, got %v", got)
	}
}

func TestSetActiveSlotMissingChangesNothing(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newTestManager(t, mem)
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, false)

	rec := &recorder{}
	m.Subscribe(rec.listen)
	_, writesBefore := mem.Ops()

	ok, err := m.SetActiveSlot(ctx, "nonexistent", true, true)
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
	if active, _ := m.ActiveSlot(); active.SlotName != "a" {
		t.Errorf("active slot changed to %q", active.SlotName)
	}
	if _, writesAfter := mem.Ops(); writesAfter != writesBefore {
		t.Errorf("expected no writes, got %d", writesAfter-writesBefore)
	}
	if got := rec.types(); len(got) != 0 {
		t.Errorf("expected no events, got %v", got)
	}
}

func TestCreateSlotFreshInvariant(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newTestManager(t, storage.NewMemory(), WithClock(clock.Now), WithSceneProvider(func() int { return 2 }))
	rec := &recorder{}
	m.Subscribe(rec.listen)

	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, false)
	mustCreate(t, m, "s")

	exists, err := m.SlotExists(ctx, "s")
	if err != nil || !exists {
		t.Fatalf("SlotExists(s) = %v, %v", exists, err)
	}
	meta, ok, err := m.GetSlot(ctx, "s")
	if err != nil || !ok {
		t.Fatalf("GetSlot(s) = %v, %v", ok, err)
	}
	if meta.TimePlayed != slot.ZeroTimePlayed {
		t.Errorf("expected zero time played, got %s", meta.TimePlayed)
	}
	if meta.CreationDate != clock.Now().Format(time.RFC3339) {
		t.Errorf("unexpected creation date %q", meta.CreationDate)
	}
	if meta.CurrentSceneIndex != 2 {
		t.Errorf("expected scene index 2, got %d", meta.CurrentSceneIndex)
	}
	if active, _ := m.ActiveSlot(); active.SlotName != "a" {
		t.Errorf("create changed the active slot to %q", active.SlotName)
	}
	// Only the switch to "a" fired.
	if got := rec.types(); !equalTypes(got, []EventType{EventSlotSwitched}) {
		t.Errorf("unexpected events %v", got)
	}
}

func TestDeleteSlot(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "s")

	if err := m.DeleteSlot(ctx, "s"); err != nil {
		t.Fatalf("DeleteSlot failed: %v", err)
	}
	if exists, _ := m.SlotExists(ctx, "s"); exists {
		t.Error("slot still exists after delete")
	}
	if _, ok, err := m.GetSlot(ctx, "s"); ok || err != nil {
		t.Errorf("GetSlot after delete = %v, %v", ok, err)
	}
	if err := m.DeleteSlot(ctx, "never-created"); err != nil {
		t.Errorf("deleting a missing slot should be a no-op, got %v", err)
	}
}

func TestKeyValueSurvivesNewManager(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	open := func() *Manager {
		fs, err := storage.NewFileStorage(filepath.Join(dir, "saves"), ".sav", codec.JSON{})
		if err != nil {
			t.Fatalf("file storage: %v", err)
		}
		return newTestManager(t, fs)
	}

	first := open()
	mustCreate(t, first, "a")
	mustActivate(t, first, "a", false, false)
	first.KV().SetInt("coins", 42)
	first.KV().SetString("name", "ada")
	if err := first.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := open()
	mustActivate(t, second, "a", false, true)
	if v, err := second.KV().GetInt("coins"); err != nil || v != 42 {
		t.Errorf("GetInt(coins) = %d, %v", v, err)
	}
	if v, err := second.KV().GetString("name"); err != nil || v != "ada" {
		t.Errorf("GetString(name) = %q, %v", v, err)
	}
}

func TestDeletedKeyIsNotResurrected(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, false)

	m.KV().SetInt("coins", 1)
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	m.KV().DeleteKey("coins")
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.KV().HasKey("coins") {
		t.Error("deleted key came back after save and load")
	}
}

func TestSwitchBetweenSlotsRestoresState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a", "b")

	live := stats{}
	m.Register(state.NewParticipant("player", state.Bind("stats", &live)))

	mustActivate(t, m, "a", false, true)
	live.Health = 10
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mustActivate(t, m, "b", false, false)
	live.Health = 99
	mustActivate(t, m, "a", false, true)

	if live.Health != 10 {
		t.Errorf("expected health 10 after switching back, got %d", live.Health)
	}
}

func TestSwitchEventOrder(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a", "b")
	mustActivate(t, m, "a", false, false)

	rec := &recorder{}
	m.Subscribe(rec.listen)
	mustActivate(t, m, "b", true, true)

	want := []EventType{EventSlotSaved, EventSlotSwitched, EventSlotLoaded}
	if got := rec.types(); !equalTypes(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if rec.events[0].Slot != "a" || rec.events[1].Slot != "b" || rec.events[2].Slot != "b" {
		t.Errorf("unexpected event slots %+v", rec.events)
	}
}

func TestSwitchSucceedsWhenOptionalSaveFails(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newTestManager(t, mem)
	mustCreate(t, m, "a", "b")
	mustActivate(t, m, "a", false, false)
	mem.PutRaw("a", []byte("{broken"))

	rec := &recorder{}
	m.Subscribe(rec.listen)

	ok, err := m.SetActiveSlot(ctx, "b", true, false)
	if err != nil || !ok {
		t.Fatalf("SetActiveSlot = %v, %v", ok, err)
	}
	if got := rec.types(); !equalTypes(got, []EventType{EventSlotSwitched}) {
		t.Errorf("events = %v", got)
	}
}

func TestCorruptSlotIsReported(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m := newTestManager(t, mem)
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, false)
	mem.PutRaw("a", []byte("{broken"))

	if _, _, err := m.GetSlot(ctx, "a"); !saveerrors.HasCode(err, saveerrors.CodeCorrupt) {
		t.Errorf("GetSlot: expected corrupt slot error, got %v", err)
	}
	if err := m.Load(ctx); !saveerrors.HasCode(err, saveerrors.CodeCorrupt) {
		t.Errorf("Load: expected corrupt slot error, got %v", err)
	}
	if err := m.Save(ctx); !saveerrors.HasCode(err, saveerrors.CodeCorrupt) {
		t.Errorf("Save: expected corrupt slot error, got %v", err)
	}
	if _, err := m.ListSlots(ctx); !saveerrors.HasCode(err, saveerrors.CodeCorrupt) {
		t.Errorf("ListSlots: expected corrupt slot error, got %v", err)
	}
}

func TestListSlotsReadsEachSlot(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	clock := newFakeClock()
	m := newTestManager(t, mem, WithClock(clock.Now))
	mustCreate(t, m, "c", "a", "b")
	mustActivate(t, m, "a", false, false)
	clock.Advance(time.Minute)
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := mem.Write(ctx, "stray", slot.Container{}); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	slots, err := m.ListSlots(ctx)
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %+v", slots)
	}
	for i, name := range []string{"a", "b", "c"} {
		if slots[i].SlotName != name {
			t.Errorf("slot %d: got %s, want %s", i, slots[i].SlotName, name)
		}
	}
	if slots[0].TimePlayed != "00:01:00" {
		t.Errorf("expected a's own metadata, got time played %s", slots[0].TimePlayed)
	}
	if slots[1].TimePlayed != slot.ZeroTimePlayed {
		t.Errorf("expected b's own metadata, got time played %s", slots[1].TimePlayed)
	}
}

func TestTimePlayedAccumulates(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newTestManager(t, storage.NewMemory(), WithClock(clock.Now), WithSceneProvider(func() int { return 4 }))
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, true)

	clock.Advance(90*time.Minute + 5*time.Second)
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	active, _ := m.ActiveSlot()
	if active.TimePlayed != "01:30:05" {
		t.Errorf("expected 01:30:05, got %s", active.TimePlayed)
	}
	if active.CurrentSceneIndex != 4 {
		t.Errorf("expected scene index 4, got %d", active.CurrentSceneIndex)
	}

	clock.Advance(30 * time.Minute)
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	meta, _, err := m.GetSlot(ctx, "a")
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if meta.TimePlayed != "02:00:05" {
		t.Errorf("expected 02:00:05 on disk, got %s", meta.TimePlayed)
	}
}

func TestListenerMayCallBackIntoManager(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a")

	rec := &recorder{}
	m.Subscribe(func(ev Event) {
		rec.listen(ev)
		if ev.Type == EventSlotSwitched {
			if err := m.Save(ctx); err != nil {
				t.Errorf("Save from listener failed: %v", err)
			}
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if ok, err := m.SetActiveSlot(ctx, "a", false, false); err != nil || !ok {
			t.Errorf("SetActiveSlot = %v, %v", ok, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener re-entry deadlocked")
	}

	want := []EventType{EventSlotSwitched, EventSlotSaved}
	if got := rec.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestUnsubscribe(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a")

	rec := &recorder{}
	unsubscribe := m.Subscribe(rec.listen)
	unsubscribe()
	unsubscribe()
	mustActivate(t, m, "a", false, false)

	if got := rec.types(); len(got) != 0 {
		t.Errorf("expected no events after unsubscribe, got %v", got)
	}
}

func TestInvalidSlotNames(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())

	for _, name := range []string{"", "  ", "../escape", `a\b`, ".."} {
		if _, err := m.CreateSlot(ctx, name); !saveerrors.HasCode(err, saveerrors.CodeInvalidInput) {
			t.Errorf("CreateSlot(%q): expected invalid input, got %v", name, err)
		}
		if ok, err := m.SetActiveSlot(ctx, name, false, false); ok || err == nil {
			t.Errorf("SetActiveSlot(%q) = %v, %v", name, ok, err)
		}
	}
}

func TestSlotNamesAreNormalized(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())

	decomposed := "cafe\u0301"
	composed := "caf\u00e9"
	meta, err := m.CreateSlot(ctx, decomposed)
	if err != nil {
		t.Fatalf("CreateSlot failed: %v", err)
	}
	if meta.SlotName != composed {
		t.Errorf("expected composed slot name %q, got %q", composed, meta.SlotName)
	}
	if _, ok, err := m.GetSlot(ctx, composed); err != nil || !ok {
		t.Fatalf("GetSlot(%q) = %v, %v", composed, ok, err)
	}
	if ok, err := m.SetActiveSlot(ctx, decomposed, false, false); err != nil || !ok {
		t.Fatalf("SetActiveSlot(%q) = %v, %v", decomposed, ok, err)
	}
}

func TestDebugGatesWarnings(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		debug bool
		want  bool
	}{
		{"debug on", true, true},
		{"debug off", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			cfg := saveConfig()
			cfg.Debug = tc.debug
			m, err := New(cfg, storage.NewMemory(), WithLogger(logger))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if err := m.Save(ctx); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			got := strings.Contains(buf.String(), "no active slot")
			if got != tc.want {
				t.Errorf("warning logged = %v, want %v (output %q)", got, tc.want, buf.String())
			}
			if tc.want && !strings.Contains(buf.String(), "component=slotsave") {
				t.Errorf("expected component attribute, got %q", buf.String())
			}
		})
	}
}

func TestSlotEntries(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemory())
	mustCreate(t, m, "a")
	mustActivate(t, m, "a", false, false)

	hp := 3
	m.Register(state.NewParticipant("p", state.Bind("hp", &hp)))
	if err := m.KV().SetFloat("volume", 0.5); err != nil {
		t.Fatalf("SetFloat failed: %v", err)
	}
	m.KV().SetInt("coins", 2)
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	counts, err := m.SlotEntries(ctx, "a")
	if err != nil {
		t.Fatalf("SlotEntries failed: %v", err)
	}
	if counts[slot.KindMetadata] != 1 || counts[slot.KindParticipant] != 1 || counts[slot.KindValue] != 2 {
		t.Errorf("unexpected entry counts %v", counts)
	}
}
