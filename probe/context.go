package probe

import (
	"errors"
)

// RegMax is how many argument registers the kernel sampler captures.
const RegMax = 5

var ErrHeadUnreadable = errors.New("skb head not readable")

// Offsets gives the argument position of the objects a probed symbol takes.
// A value of -1 means the argument isn't available at this symbol.
type Offsets struct {
	SkBuff     int8
	DropReason int8
}

// NoOffsets is the value for symbols taking none of the known objects.
var NoOffsets = Offsets{SkBuff: -1, DropReason: -1}

// Context is the per-invocation context rebuilt from one kernel sample. The
// sampler fills the timestamp and symbol address as early as possible, then
// captures the argument registers; the skb head is read in the kernel since
// it cannot be dereferenced from here, and is zero when the read failed.
type Context struct {
	Timestamp uint64
	Ksym      uint64
	Regs      [RegMax]uint64
	NumRegs   uint32
	Offsets   Offsets
	Head      uint64
}

func (ctx *Context) arg(offset int8) (uint64, bool) {
	if offset < 0 || int(offset) >= RegMax || uint32(offset) >= ctx.NumRegs {
		return 0, false
	}
	return ctx.Regs[offset], true
}

// SkBuff returns the skb address the probed function was called with, or
// zero when the symbol does not take one.
func (ctx *Context) SkBuff() uint64 {
	v, ok := ctx.arg(ctx.Offsets.SkBuff)
	if !ok {
		return 0
	}
	return v
}

// SkbHead returns the skb data head address. An skb whose head cannot be
// read is not trackable and the error tells the caller to leave it alone.
func (ctx *Context) SkbHead() (uint64, error) {
	if ctx.Head == 0 {
		return 0, ErrHeadUnreadable
	}
	return ctx.Head, nil
}

// DropReason returns the raw drop reason value when the probed symbol
// provides one.
func (ctx *Context) DropReason() (uint32, bool) {
	v, ok := ctx.arg(ctx.Offsets.DropReason)
	if !ok {
		return 0, false
	}
	return uint32(v), true
}
