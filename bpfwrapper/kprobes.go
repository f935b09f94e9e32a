package bpfwrapper

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/iovisor/gobpf/bcc"

	"github.com/packetvisor/skb-lifecycle-tracking/structs"
)

const (
	// The single generic kprobe body in kernel/tracking.cc.
	samplerHookName = "probe_skb_sample"

	maxActiveProbes = 1024
)

// AttachTrackingHooks attaches the sampler to every symbol in the list and
// returns the hooks that actually attached. A symbol failing to attach is
// logged and skipped; fallback hooks are only tried when their preferred
// symbol did not attach.
func AttachTrackingHooks(bpfModule *bcc.Module, hooks []TrackingHook) []TrackingHook {
	probeFD, err := bpfModule.LoadKprobe(samplerHookName)
	if err != nil {
		log.Printf("failed to load %q due to: %v", samplerHookName, err)
		return nil
	}

	attachedSet := make(map[string]bool)
	attached := make([]TrackingHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook.FallbackFor != "" && attachedSet[hook.FallbackFor] {
			log.Printf("skipping fallback %q, %q already attached", hook.Symbol, hook.FallbackFor)
			continue
		}

		log.Printf("Loading %q for %q as kprobe\n", samplerHookName, hook.Symbol)
		if err := bpfModule.AttachKprobe(hook.Symbol, probeFD, maxActiveProbes); err != nil {
			log.Printf("failed to attach kprobe %q to %q due to: %v, skipping", samplerHookName, hook.Symbol, err)
			continue
		}
		attachedSet[hook.Symbol] = true
		attached = append(attached, hook)
	}
	return attached
}

// PopulateConfigMap writes one argument-offsets row per hooked symbol into
// the sampler's config_map, keyed by the symbol address. The sampler needs
// the offsets to find the skb and read its head in kernel context.
func PopulateConfigMap(bpfModule *bcc.Module, hooks []TrackingHook, addrs map[string]uint64) error {
	configMap := bcc.NewTable(bpfModule.TableId("config_map"), bpfModule)

	for _, hook := range hooks {
		ksym, ok := addrs[hook.Symbol]
		if !ok {
			log.Printf("no kallsyms address for %q, samples from it will be ignored", hook.Symbol)
			continue
		}

		key := make([]byte, 8)
		bcc.GetHostByteOrder().PutUint64(key, ksym)

		var leaf bytes.Buffer
		cfg := structs.ProbeConfig{SkbArg: hook.SkbArg, ReasonArg: hook.ReasonArg}
		if err := binary.Write(&leaf, bcc.GetHostByteOrder(), &cfg); err != nil {
			return fmt.Errorf("encoding config row for %q: %v", hook.Symbol, err)
		}
		if err := configMap.Set(key, leaf.Bytes()); err != nil {
			return fmt.Errorf("writing config row for %q: %v", hook.Symbol, err)
		}
	}
	return nil
}

// ProbeChannel represents a single handler to a BPF perf buffer.
type ProbeChannel struct {
	name    string
	handler ProbeHandler
}

// ProbeHandler drains one perf buffer channel.
type ProbeHandler func(inputChan chan []byte, consumer *SampleConsumer)

// NewProbeChannel creates a new probe channel with a given handler.
func NewProbeChannel(name string, handler ProbeHandler) *ProbeChannel {
	return &ProbeChannel{name: name, handler: handler}
}

// LaunchPerfBufferConsumers starts draining every given perf buffer into
// its handler, feeding the shared sample consumer.
func LaunchPerfBufferConsumers(bpfModule *bcc.Module, consumer *SampleConsumer, probeList []*ProbeChannel) error {
	for _, probeChannel := range probeList {
		channel := make(chan []byte, 1000)
		lostChannel := make(chan uint64, 100)

		table := bcc.NewTable(bpfModule.TableId(probeChannel.name), bpfModule)
		perfMap, err := bcc.InitPerfMap(table, channel, lostChannel)
		if err != nil {
			return fmt.Errorf("failed to init perf map for %q: %v", probeChannel.name, err)
		}

		go probeChannel.handler(channel, consumer)
		go func(name string) {
			for lost := range lostChannel {
				log.Printf("lost %d samples on %q", lost, name)
			}
		}(probeChannel.name)

		perfMap.Start()
	}
	return nil
}
