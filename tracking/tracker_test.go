package tracking

import (
	"testing"

	"github.com/packetvisor/skb-lifecycle-tracking/events"
	"github.com/packetvisor/skb-lifecycle-tracking/probe"
)

// Pseudo symbol addresses for the test config map.
const (
	symGeneric uint64 = 0xffffffff81000010
	symInvHead uint64 = 0xffffffff81000020
	symFree    uint64 = 0xffffffff81000030
	symBoth    uint64 = 0xffffffff81000040
)

func testTracker() *Tracker {
	configs := NewConfigMap(map[uint64]TrackingConfig{
		symGeneric: {},
		symInvHead: {InvHead: true},
		symFree:    {Free: true},
		symBoth:    {Free: true, InvHead: true},
	})
	return NewTracker(configs, NewTable())
}

func obsCtx(ksym, skb, head, ts uint64) *probe.Context {
	offsets := probe.Offsets{SkBuff: 0, DropReason: -1}
	if ksym == symFree || ksym == symBoth {
		offsets.DropReason = 1
	}
	return &probe.Context{
		Timestamp: ts,
		Ksym:      ksym,
		Regs:      [probe.RegMax]uint64{skb},
		NumRegs:   probe.RegMax,
		Offsets:   offsets,
		Head:      head,
	}
}

func track(t *testing.T, tr *Tracker, ctx *probe.Context) *events.SkbTrackingEvent {
	t.Helper()
	event := &events.RawEvent{}
	tr.Track(ctx, event)
	return events.SkbTrackingSection(event)
}

func TestTrackFirstObservation(t *testing.T) {
	tr := testTracker()

	ev := track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	if ev == nil {
		t.Fatalf("no tracking section for a trackable skb")
	}
	if ev.OrigHead != 0x1000 || ev.Timestamp != 100 || ev.Skb != 0xAAAA {
		t.Errorf("wrong identity: %+v", ev)
	}

	ti := tr.Table().Lookup(0x1000)
	if ti == nil {
		t.Fatalf("record not persisted under the head address")
	}
	if ti.FirstSeen != 100 || ti.OrigHead != 0x1000 {
		t.Errorf("wrong record: %+v", ti)
	}
	if ti.LastSeen() != 100 {
		t.Errorf("last seen not refreshed: %d", ti.LastSeen())
	}
}

func TestTrackRepeatObservationKeepsIdentity(t *testing.T) {
	tr := testTracker()

	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	ev := track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 250))
	if ev == nil {
		t.Fatalf("no tracking section")
	}
	if ev.Timestamp != 100 {
		t.Errorf("first-seen rewritten: %d", ev.Timestamp)
	}

	if got := tr.Table().Lookup(0x1000).LastSeen(); got != 250 {
		t.Errorf("last seen not refreshed: %d", got)
	}
	if tr.Table().Len() != 1 {
		t.Errorf("repeat observation changed len: %d", tr.Table().Len())
	}
}

func TestTrackFreeRemoves(t *testing.T) {
	tr := testTracker()

	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	ev := track(t, tr, obsCtx(symFree, 0xAAAA, 0x1000, 200))
	if ev == nil {
		t.Fatalf("no tracking section at the freeing point")
	}
	if ev.Timestamp != 100 {
		t.Errorf("freeing event lost the identity: %+v", ev)
	}

	if tr.Table().Lookup(0x1000) != nil {
		t.Errorf("record survived the free")
	}
	if got := tr.Stats().Freed.Load(); got != 1 {
		t.Errorf("freed count %d", got)
	}
}

func TestTrackFreeFirstNotPersisted(t *testing.T) {
	tr := testTracker()

	// First and only sighting is at a freeing point; still reported, but
	// nothing is retained.
	ev := track(t, tr, obsCtx(symFree, 0xAAAA, 0x1000, 100))
	if ev == nil {
		t.Fatalf("no tracking section")
	}
	if ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Errorf("wrong synthesized identity: %+v", ev)
	}
	if tr.Table().Len() != 0 {
		t.Errorf("record persisted at a freeing point")
	}
}

func TestTrackDropReason(t *testing.T) {
	tr := testTracker()

	ctx := obsCtx(symFree, 0xAAAA, 0x1000, 100)
	ctx.Regs[1] = 42
	ev := track(t, tr, ctx)
	if ev == nil {
		t.Fatalf("no tracking section")
	}
	if ev.DropReason != 42 {
		t.Errorf("drop reason %d, want 42", ev.DropReason)
	}

	// Symbols without a reason argument report zero.
	ctx = obsCtx(symGeneric, 0xBBBB, 0x2000, 100)
	ctx.Regs[1] = 42
	ev = track(t, tr, ctx)
	if ev.DropReason != 0 {
		t.Errorf("reason decoded from a symbol not carrying one: %d", ev.DropReason)
	}
}

func TestTrackHeadInvalidationAndMigration(t *testing.T) {
	tr := testTracker()

	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	ev := track(t, tr, obsCtx(symInvHead, 0xAAAA, 0x1000, 200))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("invalidation lost the identity: %+v", ev)
	}

	// Reachable only under the alias until the new head shows up.
	if tr.Table().Lookup(0x1000) != nil {
		t.Errorf("record still reachable under the invalidated head")
	}
	if tr.Table().Lookup(0xAAAA) == nil {
		t.Fatalf("record not parked under the skb address")
	}

	// Next observation carries the new head; the record migrates and the
	// identity survives.
	ev = track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x2000, 300))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("migration lost the identity: %+v", ev)
	}
	if tr.Table().Lookup(0xAAAA) != nil {
		t.Errorf("alias survived the migration")
	}
	if tr.Table().Lookup(0x2000) == nil {
		t.Errorf("record not reachable under the new head")
	}
	if got := tr.Stats().Migrations.Load(); got != 1 {
		t.Errorf("migration count %d", got)
	}

	// Full lifecycle ends at the freeing point with the original identity.
	ev = track(t, tr, obsCtx(symFree, 0xAAAA, 0x2000, 400))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("freeing event lost the identity: %+v", ev)
	}
	if tr.Table().Len() != 0 {
		t.Errorf("len %d after the free", tr.Table().Len())
	}
}

func TestTrackStaleAliasAdoptedOnAddressReuse(t *testing.T) {
	tr := testTracker()

	// A lifecycle whose tail events were missed leaves a stale alias
	// behind after an invalidation.
	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	track(t, tr, obsCtx(symInvHead, 0xAAAA, 0x1000, 200))

	// The skb address is reused by a new buffer. Its first sighting misses
	// on the head and finds the stale alias, which gets migrated; the old
	// identity bleeds into the new lifecycle. Accepted imprecision, the
	// record must still be reachable under exactly one key.
	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x3000, 300))

	if tr.Table().Lookup(0xAAAA) != nil {
		t.Errorf("alias survived the migration")
	}
	ti := tr.Table().Lookup(0x3000)
	if ti == nil {
		t.Fatalf("no record under the new head")
	}
	if ti.OrigHead != 0x1000 {
		t.Errorf("unexpected identity after adoption: %+v", ti)
	}
	if tr.Table().Len() != 1 {
		t.Errorf("len %d, record reachable under more than one key", tr.Table().Len())
	}
}

func TestTrackMigrationDrop(t *testing.T) {
	tr := testTracker()
	newHead := uint64(0x2000)

	// An skb address whose probe chain is well clear of the new head's
	// chain, so removing the alias cannot reopen a slot there.
	skb := uint64(0)
	for candidate := uint64(0xAAAA); ; candidate += 2 {
		d := (hashKey(candidate) - hashKey(newHead)) & slotMask
		if d > 2*maxProbes && d < tableSlots-2*maxProbes {
			skb = candidate
			break
		}
	}

	// Park a record under its alias.
	track(t, tr, obsCtx(symGeneric, skb, 0x1000, 100))
	track(t, tr, obsCtx(symInvHead, skb, 0x1000, 200))

	// Occupy the entire probe chain of the upcoming head address with
	// live records of other skbs, so the parked record has nowhere to
	// migrate to.
	blockers := make([]uint64, 0, maxProbes)
	for candidate := newHead + 8; ; candidate += 8 {
		if hashKey(candidate) != hashKey(newHead) {
			continue
		}
		if tr.Table().InsertIfAbsent(candidate, &TrackingInfo{FirstSeen: 50, OrigHead: candidate}) {
			blockers = append(blockers, candidate)
		}
		if tr.Table().InsertIfAbsent(newHead, &TrackingInfo{OrigHead: newHead}) {
			tr.Table().Remove(newHead)
			continue
		}
		break
	}

	// The next observation finds the alias but loses the migration; the
	// record is dropped, yet this event still carries its identity.
	ev := track(t, tr, obsCtx(symGeneric, skb, newHead, 300))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("dropped migration lost the event identity: %+v", ev)
	}
	if got := tr.Stats().MigrationDrops.Load(); got != 1 {
		t.Errorf("migration drop count %d", got)
	}

	if tr.Table().Lookup(skb) != nil {
		t.Errorf("alias survived the dropped migration")
	}
	if tr.Table().Lookup(newHead) != nil {
		t.Errorf("record admitted under a fully occupied chain")
	}
	for _, key := range blockers {
		ti := tr.Table().Lookup(key)
		if ti == nil || ti.OrigHead != key || ti.FirstSeen != 50 {
			t.Fatalf("occupying record for %x disturbed by the lost migration", key)
		}
	}

	// History is gone: the next sighting of this buffer synthesizes a
	// fresh identity.
	ev = track(t, tr, obsCtx(symGeneric, skb, 0x3000, 400))
	if ev == nil || ev.OrigHead != 0x3000 || ev.Timestamp != 400 {
		t.Fatalf("expected a fresh identity after the drop: %+v", ev)
	}
}

func TestTrackInvalidationWinsOverFree(t *testing.T) {
	tr := testTracker()

	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	ev := track(t, tr, obsCtx(symBoth, 0xAAAA, 0x1000, 200))
	if ev == nil {
		t.Fatalf("no tracking section")
	}

	// Both flags set: the record is parked, not freed.
	if tr.Table().Lookup(0xAAAA) == nil {
		t.Errorf("record not parked under the skb address")
	}
	if got := tr.Stats().Freed.Load(); got != 0 {
		t.Errorf("freed count %d with invalidation winning", got)
	}
}

func TestTrackUnreadableHead(t *testing.T) {
	tr := testTracker()

	event := &events.RawEvent{}
	tr.Track(obsCtx(symGeneric, 0xAAAA, 0, 100), event)
	if event.Len() != 0 {
		t.Errorf("event appended for an unreadable head")
	}
	if tr.Table().Len() != 0 {
		t.Errorf("record created for an unreadable head")
	}
	if got := tr.Stats().Untrackable.Load(); got != 1 {
		t.Errorf("untrackable count %d", got)
	}
}

func TestTrackNoSkbArgument(t *testing.T) {
	tr := testTracker()

	ctx := obsCtx(symGeneric, 0, 0x1000, 100)
	ctx.Offsets = probe.NoOffsets
	event := &events.RawEvent{}
	tr.Track(ctx, event)
	if event.Len() != 0 {
		t.Errorf("event appended without an skb")
	}
	if got := tr.Stats().Untrackable.Load(); got != 1 {
		t.Errorf("untrackable count %d", got)
	}
}

func TestTrackUnknownSymbolIsGeneric(t *testing.T) {
	tr := testTracker()

	// A symbol missing from the config map gets the zero config: tracked,
	// not freeing, not invalidating.
	ev := track(t, tr, obsCtx(0xdeadbeef, 0xAAAA, 0x1000, 100))
	if ev == nil {
		t.Fatalf("no tracking section")
	}
	if tr.Table().Lookup(0x1000) == nil {
		t.Errorf("record not persisted for an unknown symbol")
	}
}

func TestTrackCapacityDegradesToEventOnly(t *testing.T) {
	tr := testTracker()

	for key := uint64(1); tr.Table().Len() < MaxTrackedSkbs; key++ {
		tr.Table().InsertIfAbsent(key*0x10000, &TrackingInfo{OrigHead: key * 0x10000})
	}

	ev := track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	if ev == nil {
		t.Fatalf("no event once the table is full")
	}
	if ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Errorf("degraded event lost its one-shot identity: %+v", ev)
	}
	if got := tr.Stats().AdmissionFailures.Load(); got != 1 {
		t.Errorf("admission failure count %d", got)
	}

	// The second sighting synthesizes again: continuity is lost, the
	// event still flows.
	ev = track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 200))
	if ev == nil {
		t.Fatalf("no event on the second degraded sighting")
	}
	if ev.Timestamp != 200 {
		t.Errorf("degraded sighting carried state it should not have: %+v", ev)
	}
}

func TestTrackFullLifecycle(t *testing.T) {
	tr := testTracker()

	// First sighting on the receive path.
	ev := track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("first sighting: %+v", ev)
	}

	// Re-observed at the same point.
	ev = track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 150))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("second sighting: %+v", ev)
	}

	// Head invalidated; the record parks under the skb address.
	ev = track(t, tr, obsCtx(symInvHead, 0xAAAA, 0x1000, 200))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("invalidation: %+v", ev)
	}

	// Observed with the reallocated head; the record migrates.
	ev = track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x2000, 250))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("migration: %+v", ev)
	}

	// Freed; identity reported one last time, record retired.
	ev = track(t, tr, obsCtx(symFree, 0xAAAA, 0x2000, 300))
	if ev == nil || ev.OrigHead != 0x1000 || ev.Timestamp != 100 {
		t.Fatalf("free: %+v", ev)
	}
	if tr.Table().Lookup(0x2000) != nil {
		t.Errorf("record reachable after the free")
	}

	// The head address reused by a fresh buffer starts a new identity.
	ev = track(t, tr, obsCtx(symGeneric, 0xBBBB, 0x2000, 400))
	if ev == nil || ev.OrigHead != 0x2000 || ev.Timestamp != 400 {
		t.Fatalf("reuse after free: %+v", ev)
	}
}

func TestTrackStatsCounts(t *testing.T) {
	tr := testTracker()

	track(t, tr, obsCtx(symGeneric, 0xAAAA, 0x1000, 100))
	track(t, tr, obsCtx(symFree, 0xAAAA, 0x1000, 200))
	event := &events.RawEvent{}
	tr.Track(obsCtx(symGeneric, 0xBBBB, 0, 300), event)

	if got := tr.Stats().Ingested.Load(); got != 3 {
		t.Errorf("ingested %d", got)
	}
	if got := tr.Stats().Emitted.Load(); got != 2 {
		t.Errorf("emitted %d", got)
	}
	if got := tr.Stats().Untrackable.Load(); got != 1 {
		t.Errorf("untrackable %d", got)
	}
}
