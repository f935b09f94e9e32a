package events

import (
	"encoding/binary"
	"fmt"
)

// SkbTrackingEventSize is the wire size of the tracking section payload.
const SkbTrackingEventSize = 28

// SkbTrackingEvent ties an observation of an skb back to its original
// identity and first-seen time. Timestamp is the first-seen timestamp of the
// logical skb, not the timestamp of this observation; the latter lives in
// the common section.
type SkbTrackingEvent struct {
	OrigHead   uint64 `json:"origHead"`
	Timestamp  uint64 `json:"firstSeen"`
	Skb        uint64 `json:"skb"`
	DropReason uint32 `json:"dropReason"`
}

// AppendSkbTracking writes the tracking section into a raw event. Returns
// false when the event has no room left; the section is dropped.
func AppendSkbTracking(e *RawEvent, ev *SkbTrackingEvent) bool {
	section := e.Section(OwnerSkbTracking, 1, SkbTrackingEventSize)
	if section == nil {
		return false
	}

	binary.LittleEndian.PutUint64(section[0:], ev.OrigHead)
	binary.LittleEndian.PutUint64(section[8:], ev.Timestamp)
	binary.LittleEndian.PutUint64(section[16:], ev.Skb)
	binary.LittleEndian.PutUint32(section[24:], ev.DropReason)
	return true
}

// SkbTrackingFromBytes decodes a tracking section payload.
func SkbTrackingFromBytes(b []byte) (*SkbTrackingEvent, error) {
	if len(b) < SkbTrackingEventSize {
		return nil, fmt.Errorf("tracking section too short: %d", len(b))
	}

	return &SkbTrackingEvent{
		OrigHead:   binary.LittleEndian.Uint64(b[0:]),
		Timestamp:  binary.LittleEndian.Uint64(b[8:]),
		Skb:        binary.LittleEndian.Uint64(b[16:]),
		DropReason: binary.LittleEndian.Uint32(b[24:]),
	}, nil
}

// SkbTrackingSection finds and decodes the tracking section of a raw event,
// or returns nil when the event carries none.
func SkbTrackingSection(e *RawEvent) *SkbTrackingEvent {
	sections, err := Sections(e.Bytes())
	if err != nil {
		return nil
	}
	for _, s := range sections {
		if s.Owner != OwnerSkbTracking {
			continue
		}
		ev, err := SkbTrackingFromBytes(s.Data)
		if err != nil {
			return nil
		}
		return ev
	}
	return nil
}
