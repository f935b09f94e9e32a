package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/packetvisor/skb-lifecycle-tracking/events"
	"github.com/packetvisor/skb-lifecycle-tracking/probe"
	"github.com/packetvisor/skb-lifecycle-tracking/tracking"
	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

// Pseudo symbol addresses standing in for the probed kernel symbols. They
// only need to be distinct and stable so the config map can key on them.
const (
	SymReceive    uint64 = 0xffffffffc0de0010
	SymForward    uint64 = 0xffffffffc0de0020
	SymExpandHead uint64 = 0xffffffffc0de0030
	SymFree       uint64 = 0xffffffffc0de0040
)

// Packets larger than this get a head-invalidating resize mid-lifecycle,
// like a real stack reallocating to gain headroom.
const resizeThreshold = 1200

// Summary is what a replay run produced.
type Summary struct {
	Packets     uint64
	Events      uint64
	LiveRecords int
}

// Replayer feeds synthetic buffer lifecycles built from a capture file into
// a tracker, one lifecycle per packet. Used off-box, where no kernel side
// exists, to demo and soak the resolution engine.
type Replayer struct {
	tracker *tracking.Tracker
	sink    func(*events.RawEvent)

	offsets map[uint64]probe.Offsets
	now     uint64
	nextSkb uint64
}

func NewReplayer(sink func(*events.RawEvent)) *Replayer {
	configs := tracking.NewConfigMap(map[uint64]tracking.TrackingConfig{
		SymReceive:    {},
		SymForward:    {},
		SymExpandHead: {InvHead: true},
		SymFree:       {Free: true},
	})

	return &Replayer{
		tracker: tracking.NewTracker(configs, tracking.NewTable()),
		sink:    sink,
		offsets: map[uint64]probe.Offsets{
			SymReceive:    {SkBuff: 0, DropReason: -1},
			SymForward:    {SkBuff: 0, DropReason: -1},
			SymExpandHead: {SkBuff: 0, DropReason: -1},
			SymFree:       {SkBuff: 0, DropReason: 1},
		},
		nextSkb: 0xffff000000001000,
	}
}

func (r *Replayer) Tracker() *tracking.Tracker {
	return r.tracker
}

// Run replays a pcap file through the tracker and reports what happened.
func (r *Replayer) Run(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	summary, err := r.RunStream(f)
	if err != nil {
		return nil, fmt.Errorf("replaying pcap %q: %v", path, err)
	}
	return summary, nil
}

// RunStream is Run for an already-open capture stream.
func (r *Replayer) RunStream(in io.Reader) (*Summary, error) {
	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	for packet := range source.Packets() {
		summary.Events += r.replayPacket(packet)
		summary.Packets++
	}
	summary.LiveRecords = r.tracker.Table().Len()
	return summary, nil
}

// replayPacket synthesizes one buffer lifecycle for a captured packet:
// receive, a few forwarding hops, a resize when the packet is large enough
// to plausibly need more headroom, then the free.
func (r *Replayer) replayPacket(packet gopacket.Packet) uint64 {
	meta := packet.Metadata()
	if ts := uint64(meta.Timestamp.UnixNano()); ts > r.now {
		r.now = ts
	}

	skb := r.nextSkb
	head := skb + 0x100
	r.nextSkb += 0x1000

	emitted := r.fire(SymReceive, skb, head, 0)

	hops := uint64(1)
	if packet.Layer(layers.LayerTypeTCP) != nil {
		hops = 3
	} else if packet.TransportLayer() != nil {
		hops = 2
	}
	for i := uint64(0); i < hops; i++ {
		emitted += r.fire(SymForward, skb, head, 0)
	}

	if meta.CaptureInfo.Length > resizeThreshold {
		emitted += r.fire(SymExpandHead, skb, head, 0)
		head = skb + 0x10000
	}

	emitted += r.fire(SymFree, skb, head, 0)
	utils.Debugf("replayed lifecycle skb=%x hops=%d emitted=%d", skb, hops, emitted)
	return emitted
}

// fire drives one observation through the tracker exactly the way a kernel
// sample would, and sinks the event when a tracking section was appended.
func (r *Replayer) fire(ksym, skb, head, reason uint64) uint64 {
	r.now += 1000

	ctx := &probe.Context{
		Timestamp: r.now,
		Ksym:      ksym,
		Regs:      [probe.RegMax]uint64{skb, reason},
		NumRegs:   probe.RegMax,
		Offsets:   r.offsets[ksym],
		Head:      head,
	}

	event := &events.RawEvent{}
	events.AppendCommon(event, ctx.Timestamp)
	events.AppendKernelSymbol(event, ctx.Ksym)

	before := event.Len()
	r.tracker.Track(ctx, event)
	if event.Len() == before {
		return 0
	}

	if r.sink != nil {
		r.sink(event)
	}
	return 1
}
