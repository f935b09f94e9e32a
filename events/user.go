package events

import "encoding/binary"

// UserEventSize is the wire size of the userspace section payload.
const UserEventSize = 16

// UserEvent reports one fire of a probe attached inside a target process.
type UserEvent struct {
	Symbol uint64 `json:"symbol"`
	Pid    uint32 `json:"pid"`
	Tid    uint32 `json:"tid"`
}

// AppendUser writes the userspace section of a raw event.
func AppendUser(e *RawEvent, ev *UserEvent) bool {
	section := e.Section(OwnerUserspace, 1, UserEventSize)
	if section == nil {
		return false
	}
	binary.LittleEndian.PutUint64(section[0:], ev.Symbol)
	binary.LittleEndian.PutUint32(section[8:], ev.Pid)
	binary.LittleEndian.PutUint32(section[12:], ev.Tid)
	return true
}

// UserFromBytes decodes a userspace section payload.
func UserFromBytes(b []byte) (*UserEvent, bool) {
	if len(b) < UserEventSize {
		return nil, false
	}
	return &UserEvent{
		Symbol: binary.LittleEndian.Uint64(b[0:]),
		Pid:    binary.LittleEndian.Uint32(b[8:]),
		Tid:    binary.LittleEndian.Uint32(b[12:]),
	}, true
}
