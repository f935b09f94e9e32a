package tracking

import (
	"sync/atomic"
)

// TrackingInfo stores what is known about one live skb. It is indexed in
// the table by the skb data head address and, in some temporary cases, by
// the skb address directly.
//
// FirstSeen and OrigHead are set once at creation, before the record is
// published, and never change for the life of the record. The tuple
// (OrigHead, FirstSeen) uniquely identifies the skb across head changes
// and is reported as part of every event.
type TrackingInfo struct {
	// When the skb was first seen.
	FirstSeen uint64
	// Original head address; useful once the head is invalidated.
	OrigHead uint64

	// When the skb was last seen. Maintained so tracking entries can be
	// garbage collected if we miss some events; nothing in here reads it.
	lastSeen atomic.Uint64
}

// Touch records that the skb was just seen.
func (ti *TrackingInfo) Touch(timestamp uint64) {
	ti.lastSeen.Store(timestamp)
}

// LastSeen returns the timestamp of the most recent observation.
func (ti *TrackingInfo) LastSeen() uint64 {
	return ti.lastSeen.Load()
}

const (
	// MaxTrackedSkbs mirrors the kernel-side tracking map limit. Once
	// reached, new skbs go untracked until entries are removed; nothing
	// is ever evicted to make room.
	MaxTrackedSkbs = 8192

	// Twice the capacity, power of two, keeps probe chains short.
	tableSlots = 16384
	slotMask   = tableSlots - 1

	// An insert that cannot find a slot within this many probes fails
	// closed instead of scanning further.
	maxProbes = 64

	// Re-walks of the probe chain after losing a slot CAS to a
	// concurrent mutation, before the operation gives up.
	maxClaimRetries = 4
)

// entry pairs a key with its record. A nil info is a tombstone: the slot
// stays occupied so probe chains keep working, and a later insert of any
// key may reclaim it.
type entry struct {
	key  uint64
	info *TrackingInfo
}

// Table is the bounded map from a correlation key (skb head address, or
// transiently the skb address itself) to its tracking record.
//
// Individual operations are atomic and lock free; there is no transaction
// spanning several of them. Concurrent samples racing between a lookup and
// an insert can both synthesize a record for the same key, in which case
// one insertion loses and is dropped; that imprecision is accepted, the
// alternative is blocking the probed path.
type Table struct {
	slots [tableSlots]atomic.Pointer[entry]
	count atomic.Int64
}

func NewTable() *Table {
	return &Table{}
}

// hashKey spreads addresses over the slot array. Multiplicative hashing by
// the 64-bit golden ratio, top bits taken as index.
func hashKey(key uint64) uint64 {
	const goldenRatio = 0x9E3779B97F4A7C15
	return (key * goldenRatio) >> 50
}

// Lookup returns the record stored under key, or nil. Borrowed records are
// only valid for the current invocation; callers must not retain them.
func (t *Table) Lookup(key uint64) *TrackingInfo {
	h := hashKey(key)
	for i := uint64(0); i < maxProbes; i++ {
		cur := t.slots[(h+i)&slotMask].Load()
		if cur == nil {
			return nil
		}
		if cur.key == key && cur.info != nil {
			return cur.info
		}
	}
	return nil
}

// findSlot walks the probe chain for key. It reports the slot of a live
// entry holding the same key, or otherwise the slot an insert should
// claim: the first tombstone on the chain when there is one, so removed
// keys hand their slots back, else the terminating nil slot. A negative
// index means the chain is exhausted.
func (t *Table) findSlot(key uint64) (idx int, expect *entry, live bool) {
	reclaim := -1
	var reclaimEntry *entry

	h := hashKey(key)
	for i := uint64(0); i < maxProbes; i++ {
		slot := int((h + i) & slotMask)
		cur := t.slots[slot].Load()
		if cur == nil {
			if reclaim >= 0 {
				return reclaim, reclaimEntry, false
			}
			return slot, nil, false
		}
		if cur.info == nil {
			if reclaim < 0 {
				reclaim = slot
				reclaimEntry = cur
			}
			continue
		}
		if cur.key == key {
			return slot, cur, true
		}
	}
	return reclaim, reclaimEntry, false
}

// InsertIfAbsent admits a new record under key. It returns false when the
// key is already present, when the table is at capacity, when no slot is
// found within the probe budget or when a racing mutation claims the
// chosen slot first; the caller cannot distinguish these and treats them
// all as "not admitted".
//
// The duplicate scan and the claiming CAS are not atomic together: two
// racing inserts of one key may both be admitted, the probe-order first
// record shadowing the other until it is removed. Same accepted
// imprecision as two invocations synthesizing a record for one key.
func (t *Table) InsertIfAbsent(key uint64, info *TrackingInfo) bool {
	if t.count.Load() >= MaxTrackedSkbs {
		return false
	}

	e := &entry{key: key, info: info}
	for attempt := 0; attempt < maxClaimRetries; attempt++ {
		idx, expect, live := t.findSlot(key)
		if live || idx < 0 {
			return false
		}
		if t.slots[idx].CompareAndSwap(expect, e) {
			t.count.Add(1)
			return true
		}
	}
	return false
}

// Put stores a record under key, replacing whatever record the key held.
// Used for the alias store, where a stale alias must not shadow the new
// one. Returns false when no slot could be claimed, or on a fresh claim
// when the table is at capacity.
func (t *Table) Put(key uint64, info *TrackingInfo) bool {
	e := &entry{key: key, info: info}
	for attempt := 0; attempt < maxClaimRetries; attempt++ {
		idx, expect, live := t.findSlot(key)
		if idx < 0 {
			return false
		}
		if !live && t.count.Load() >= MaxTrackedSkbs {
			return false
		}
		if t.slots[idx].CompareAndSwap(expect, e) {
			if !live {
				t.count.Add(1)
			}
			return true
		}
	}
	return false
}

// Remove deletes the record stored under key, leaving a tombstone. No-op
// when the key is absent.
func (t *Table) Remove(key uint64) {
	h := hashKey(key)
	for i := uint64(0); i < maxProbes; i++ {
		idx := (h + i) & slotMask
		cur := t.slots[idx].Load()
		if cur == nil {
			return
		}
		if cur.key != key || cur.info == nil {
			continue
		}
		if t.slots[idx].CompareAndSwap(cur, &entry{key: key}) {
			t.count.Add(-1)
			return
		}
		// Someone else touched the slot; if the key is still live here
		// it was replaced by Put, leave the new record alone.
		return
	}
}

// Len returns the number of live records.
func (t *Table) Len() int {
	return int(t.count.Load())
}

// Range calls f for every live record. It is not atomic with respect to
// concurrent mutation and is meant for maintenance tasks off the hot path,
// such as an external sweep of stale entries.
func (t *Table) Range(f func(key uint64, info *TrackingInfo) bool) {
	for i := 0; i < tableSlots; i++ {
		cur := t.slots[i].Load()
		if cur == nil || cur.info == nil {
			continue
		}
		if !f(cur.key, cur.info) {
			return
		}
	}
}
