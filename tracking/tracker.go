package tracking

import (
	"sync/atomic"

	"github.com/packetvisor/skb-lifecycle-tracking/events"
	"github.com/packetvisor/skb-lifecycle-tracking/probe"
)

// Stats counts what happened to the samples flowing through a tracker.
// Every field is cumulative; the metrics ticker snapshots and resets them.
type Stats struct {
	Ingested          atomic.Uint64
	Emitted           atomic.Uint64
	Untrackable       atomic.Uint64
	AdmissionFailures atomic.Uint64
	Migrations        atomic.Uint64
	MigrationDrops    atomic.Uint64
	Freed             atomic.Uint64
}

// Tracker resolves each observation of an skb to a stable logical identity
// and stamps the resulting event with it. It owns nothing but borrows the
// shared configuration snapshot and tracking table; a single tracker is
// fed concurrently by all sample consumers.
type Tracker struct {
	configs *ConfigMap
	table   *Table
	stats   Stats
}

func NewTracker(configs *ConfigMap, table *Table) *Tracker {
	return &Tracker{
		configs: configs,
		table:   table,
	}
}

func (t *Tracker) Stats() *Stats {
	return &t.stats
}

func (t *Tracker) Table() *Table {
	return t.table
}

// Track runs the identity resolution for one observation and appends the
// tracking section to the event. It never fails: every degraded outcome
// ends in an event carrying whatever identity information was available,
// except an skb whose head cannot be read, which is not trackable at all.
//
// The caller borrows the resolved record only for the duration of this
// call and retains nothing.
func (t *Tracker) Track(ctx *probe.Context, event *events.RawEvent) {
	t.stats.Ingested.Add(1)

	cfg := t.configs.Lookup(ctx.Ksym)

	skb := ctx.SkBuff()
	if skb == 0 {
		t.stats.Untrackable.Add(1)
		return
	}
	head, err := ctx.SkbHead()
	if err != nil {
		t.stats.Untrackable.Add(1)
		return
	}

	ti := t.table.Lookup(head)

	// No tracking info was found under the head address. The skb might be
	// temporarily stored under its own address, waiting for its new head.
	if ti == nil {
		if alias := t.table.Lookup(skb); alias != nil {
			t.table.Remove(skb)
			if t.table.InsertIfAbsent(head, alias) {
				t.stats.Migrations.Add(1)
			} else {
				// The head key is already taken, likely address
				// reuse. The migrating record loses its slot but
				// still stamps this event.
				t.stats.MigrationDrops.Add(1)
			}
			ti = alias
		}
	}

	// Still nothing, so this is the first time we see this skb.
	if ti == nil {
		ti = &TrackingInfo{FirstSeen: ctx.Timestamp, OrigHead: head}
		ti.Touch(ctx.Timestamp)

		// No need to globally track it if the first time we see this
		// skb is when it is freed.
		if !cfg.Free && !t.table.InsertIfAbsent(head, ti) {
			// Capacity or a racing insert; this invocation keeps its
			// local record for the event and nothing is retained.
			t.stats.AdmissionFailures.Add(1)
		}
	}

	ti.Touch(ctx.Timestamp)

	if cfg.InvHead {
		// The new head value cannot be known yet; move the record under
		// the skb address until the next observation migrates it back.
		// A stale alias under that address is overwritten, and the
		// record stays reachable under one key only. Invalidation wins
		// over freeing when a symbol is flagged with both.
		t.table.Remove(head)
		t.table.Put(skb, ti)
	} else if cfg.Free {
		t.table.Remove(head)
		t.stats.Freed.Add(1)
	}

	var reason uint32
	if r, ok := ctx.DropReason(); ok {
		reason = r
	}

	events.AppendSkbTracking(event, &events.SkbTrackingEvent{
		OrigHead:   ti.OrigHead,
		Timestamp:  ti.FirstSeen,
		Skb:        skb,
		DropReason: reason,
	})
	t.stats.Emitted.Add(1)
}
