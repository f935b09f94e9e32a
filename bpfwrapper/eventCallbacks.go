package bpfwrapper

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/iovisor/gobpf/bcc"

	"github.com/packetvisor/skb-lifecycle-tracking/events"
	"github.com/packetvisor/skb-lifecycle-tracking/probe"
	"github.com/packetvisor/skb-lifecycle-tracking/structs"
	"github.com/packetvisor/skb-lifecycle-tracking/tracking"
	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

// EventSink receives every raw event carrying a tracking section. It must
// not block the consumer; slow sinks drop instead.
type EventSink func(*events.RawEvent)

// SampleConsumer turns kernel samples into correlation events: it rebuilds
// the probe context, runs the tracker and hands the event to the sink. One
// consumer is shared by all perf buffer handlers.
type SampleConsumer struct {
	Tracker *tracking.Tracker
	Offsets map[uint64]probe.Offsets
	Sink    EventSink
}

var sampleSize = int(unsafe.Sizeof(structs.ProbeSample{}))

// TrackingSampleCallback drains the tracking_samples perf buffer.
func TrackingSampleCallback(inputChan chan []byte, consumer *SampleConsumer) {
	for data := range inputChan {
		if data == nil {
			return
		}

		if len(data) < sampleSize {
			utils.LogIngest("Short sample: %v bytes", len(data))
			continue
		}

		var sample structs.ProbeSample
		if err := binary.Read(bytes.NewReader(data[:sampleSize]), bcc.GetHostByteOrder(), &sample); err != nil {
			utils.LogIngest("Failed to decode sample: %+v", err)
			continue
		}

		offsets, ok := consumer.Offsets[sample.Ksym]
		if !ok {
			// A sample from a symbol we never configured; attach and
			// config population race, ignore it.
			utils.LogIngest("Sample from unknown ksym: %x", sample.Ksym)
			continue
		}

		ctx := &probe.Context{
			Timestamp: sample.Timestamp,
			Ksym:      sample.Ksym,
			Regs:      sample.Regs,
			NumRegs:   sample.NumRegs,
			Offsets:   offsets,
			Head:      sample.Head,
		}

		utils.LogIngest("Got sample ksym: %x skb: %x head: %x ts: %v\n",
			ctx.Ksym, ctx.SkBuff(), sample.Head, ctx.Timestamp)

		event := &events.RawEvent{}
		events.AppendCommon(event, ctx.Timestamp)
		events.AppendKernelSymbol(event, ctx.Ksym)

		before := event.Len()
		consumer.Tracker.Track(ctx, event)
		if event.Len() == before {
			// Untrackable skb, nothing to report for this fire.
			continue
		}

		if consumer.Sink != nil {
			consumer.Sink(event)
		}
	}
}

var userSampleSize = int(unsafe.Sizeof(structs.UserSample{}))

// UserSampleCallback drains the user_samples perf buffer. User probes share
// the raw event section convention but never touch the tracking table.
func UserSampleCallback(inputChan chan []byte, consumer *SampleConsumer) {
	for data := range inputChan {
		if data == nil {
			return
		}

		if len(data) < userSampleSize {
			utils.LogIngest("Short user sample: %v bytes", len(data))
			continue
		}

		var sample structs.UserSample
		if err := binary.Read(bytes.NewReader(data[:userSampleSize]), bcc.GetHostByteOrder(), &sample); err != nil {
			utils.LogIngest("Failed to decode user sample: %+v", err)
			continue
		}

		event := &events.RawEvent{}
		events.AppendCommon(event, sample.Timestamp)
		events.AppendUser(event, &events.UserEvent{
			Symbol: sample.Ip,
			Pid:    sample.Pid,
			Tid:    sample.Tid,
		})

		if consumer.Sink != nil {
			consumer.Sink(event)
		}
	}
}
