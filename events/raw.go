package events

import (
	"encoding/binary"
	"fmt"
)

// Section owners. Each section of a raw event is tagged with the subsystem
// that wrote it.
const (
	OwnerCommon      uint8 = 1
	OwnerKernel      uint8 = 2
	OwnerUserspace   uint8 = 3
	OwnerSkbTracking uint8 = 4
)

const (
	// RawEventDataSize is the section payload budget of a single raw
	// event. The 2 removed bytes account for the size field itself.
	RawEventDataSize = 1024 - 2

	sectionHeaderSize = 4
)

// RawEvent is a fixed-size buffer holding one or more tagged sections. It is
// filled synchronously while an observation is being processed and handed to
// the emission boundary as a whole.
type RawEvent struct {
	size uint16
	data [RawEventDataSize]byte
}

// Section reserves a payload of the given size, tagged with an owner and a
// per-owner data type. It returns nil when the section does not fit; the
// caller drops the section and moves on, a raw event is never an error.
func (e *RawEvent) Section(owner uint8, dataType uint8, size uint16) []byte {
	left := uint16(RawEventDataSize) - e.size
	if sectionHeaderSize+size > left {
		return nil
	}

	header := e.data[e.size : e.size+sectionHeaderSize]
	header[0] = owner
	header[1] = dataType
	binary.LittleEndian.PutUint16(header[2:], size)

	section := e.data[e.size+sectionHeaderSize : e.size+sectionHeaderSize+size]
	e.size += sectionHeaderSize + size
	return section
}

// Len returns the filled size of the event, headers included.
func (e *RawEvent) Len() int {
	return int(e.size)
}

// Bytes returns the filled part of the event buffer.
func (e *RawEvent) Bytes() []byte {
	return e.data[:e.size]
}

// Section is one decoded section of a raw event.
type DecodedSection struct {
	Owner    uint8
	DataType uint8
	Data     []byte
}

// Sections decodes the section list out of a raw event buffer, typically on
// the consumer side of the emission boundary.
func Sections(b []byte) ([]DecodedSection, error) {
	var sections []DecodedSection

	for len(b) > 0 {
		if len(b) < sectionHeaderSize {
			return nil, fmt.Errorf("truncated section header (%d bytes left)", len(b))
		}
		size := int(binary.LittleEndian.Uint16(b[2:]))
		if sectionHeaderSize+size > len(b) {
			return nil, fmt.Errorf("truncated section payload (%d > %d)", size, len(b)-sectionHeaderSize)
		}
		sections = append(sections, DecodedSection{
			Owner:    b[0],
			DataType: b[1],
			Data:     b[sectionHeaderSize : sectionHeaderSize+size],
		})
		b = b[sectionHeaderSize+size:]
	}
	return sections, nil
}

// AppendCommon writes the common section shared by all probe types.
func AppendCommon(e *RawEvent, timestamp uint64) bool {
	section := e.Section(OwnerCommon, 1, 8)
	if section == nil {
		return false
	}
	binary.LittleEndian.PutUint64(section, timestamp)
	return true
}

// AppendKernelSymbol writes the kernel section carrying the probed symbol
// address.
func AppendKernelSymbol(e *RawEvent, ksym uint64) bool {
	section := e.Section(OwnerKernel, 1, 8)
	if section == nil {
		return false
	}
	binary.LittleEndian.PutUint64(section, ksym)
	return true
}
