package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	// need an unreleased version of the gobpf library, using from a specific branch, reasoning in the thread below.
	// https://stackoverflow.com/questions/73714654/not-enough-arguments-in-call-to-c2func-bcc-func-load

	"github.com/iovisor/gobpf/bcc"

	"github.com/packetvisor/skb-lifecycle-tracking/bpfwrapper"
	"github.com/packetvisor/skb-lifecycle-tracking/db"
	"github.com/packetvisor/skb-lifecycle-tracking/events"
	"github.com/packetvisor/skb-lifecycle-tracking/kafkaUtil"
	"github.com/packetvisor/skb-lifecycle-tracking/probe"
	"github.com/packetvisor/skb-lifecycle-tracking/replay"
	"github.com/packetvisor/skb-lifecycle-tracking/tracking"
	"github.com/packetvisor/skb-lifecycle-tracking/trackingMetrics"
	"github.com/packetvisor/skb-lifecycle-tracking/userprobe"
	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

var source string = ""

func replaceBpfLogsMacros() {
	printBpfLogsEnv := os.Getenv("PRINT_BPF_LOGS")
	printBpfLogs := "0"
	if len(printBpfLogsEnv) > 0 && strings.EqualFold(printBpfLogsEnv, "true") {
		printBpfLogs = "1"
	}

	source = strings.Replace(source, "PRINT_BPF_LOGS", printBpfLogs, -1)
}

func replaceConfigMapSize(rows int) {
	// Room for the built-in hooks plus deployment overrides.
	size := 64
	for size < 2*rows {
		size *= 2
	}
	source = strings.Replace(source, "TRACKING_CONFIG_MAP_SIZE", strconv.Itoa(size), -1)
}

// kafkaSink hands every correlation event to kafka. Emission is the end of
// the line; a failed produce only bumps the error counter.
func kafkaSink(event *events.RawEvent) {
	ev := events.SkbTrackingSection(event)
	if ev == nil {
		kafkaUtil.ProduceRaw(event)
		return
	}

	var observedAt, ksym uint64
	sections, err := events.Sections(event.Bytes())
	if err == nil {
		for _, s := range sections {
			switch s.Owner {
			case events.OwnerCommon:
				if len(s.Data) >= 8 {
					observedAt = binary.LittleEndian.Uint64(s.Data)
				}
			case events.OwnerKernel:
				if len(s.Data) >= 8 {
					ksym = binary.LittleEndian.Uint64(s.Data)
				}
			}
		}
	}

	kafkaUtil.ProduceTrackingEvent(ev, observedAt, ksym)
	kafkaUtil.LogKafkaError()
}

func main() {
	run()
}

func run() {
	utils.InitMemThresh()

	// Off-box replay short-circuits everything kernel and DB related.
	replayPcap := ""
	utils.InitVar("TRACKING_REPLAY_PCAP", &replayPcap)
	if replayPcap != "" {
		runReplay(replayPcap)
		return
	}

	byteString, err := os.ReadFile("./kernel/tracking.cc")
	if err != nil {
		log.Panic(err)
	}
	source = string(byteString)

	db.InitMongoClient()
	defer db.CloseMongoClient()
	kafkaUtil.InitKafka()

	hooks := bpfwrapper.DefaultHooks()
	for _, override := range db.FetchProbeOverrides() {
		hooks = append(hooks, bpfwrapper.TrackingHook{
			Symbol:    override.Symbol,
			SkbArg:    int8(override.SkbArg),
			ReasonArg: int8(override.ReasonArg),
			Free:      override.Free,
			InvHead:   override.InvHead,
		})
	}

	replaceBpfLogsMacros()
	replaceConfigMapSize(len(hooks))

	bpfwrapper.DeleteExistingTrackingProbes()

	bpfModule := bcc.NewModule(source, []string{})
	if bpfModule == nil {
		log.Panic("bpf is nil")
	}
	defer bpfModule.Close()

	names := make([]string, 0, len(hooks))
	for _, hook := range hooks {
		names = append(names, hook.Symbol)
	}
	addrs, err := probe.SymbolAddrs(names)
	if err != nil {
		log.Panic(err)
	}

	// The config snapshot is complete before the first probe attaches;
	// nothing mutates it afterwards.
	configs := make(map[uint64]tracking.TrackingConfig)
	offsets := make(map[uint64]probe.Offsets)
	for _, hook := range hooks {
		ksym, ok := addrs[hook.Symbol]
		if !ok {
			log.Printf("symbol %q not in kallsyms, skipping", hook.Symbol)
			continue
		}
		configs[ksym] = tracking.TrackingConfig{Free: hook.Free, InvHead: hook.InvHead}
		offsets[ksym] = probe.Offsets{SkBuff: hook.SkbArg, DropReason: hook.ReasonArg}
	}

	tracker := tracking.NewTracker(tracking.NewConfigMap(configs), tracking.NewTable())
	trackingMetrics.StartMetricsTicker(tracker)

	consumer := &bpfwrapper.SampleConsumer{
		Tracker: tracker,
		Offsets: offsets,
		Sink:    kafkaSink,
	}

	callbacks := []*bpfwrapper.ProbeChannel{
		bpfwrapper.NewProbeChannel("tracking_samples", bpfwrapper.TrackingSampleCallback),
	}
	if userprobe.Enabled() {
		callbacks = append(callbacks, userprobe.Channel())
	}

	if err := bpfwrapper.LaunchPerfBufferConsumers(bpfModule, consumer, callbacks); err != nil {
		log.Panic(err)
	}

	// Config rows first, so the earliest probe fires already find their
	// argument offsets.
	if err := bpfwrapper.PopulateConfigMap(bpfModule, hooks, addrs); err != nil {
		log.Panic(err)
	}
	attached := bpfwrapper.AttachTrackingHooks(bpfModule, hooks)
	if len(attached) == 0 {
		log.Panic("no tracking probes attached")
	}

	if userprobe.Enabled() {
		userprobe.Attach(bpfModule)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	log.Println("Tracker is ready")
	<-sig

	kafkaUtil.Close()
}

func runReplay(path string) {
	emitted := 0
	replayer := replay.NewReplayer(func(event *events.RawEvent) {
		emitted++
		if ev := events.SkbTrackingSection(event); ev != nil {
			utils.LogProcessing("replay event: %+v\n", ev)
		}
	})

	summary, err := replayer.Run(path)
	if err != nil {
		log.Panic(err)
	}

	stats := replayer.Tracker().Stats()
	fmt.Printf("replayed %v packets, %v events (%v sunk), %v migrations, %v live records\n",
		summary.Packets, summary.Events, emitted, stats.Migrations.Load(), summary.LiveRecords)
}
