package bpfwrapper

// TrackingHook describes one kernel symbol the sampler attaches to: where
// its skb and drop reason arguments sit, and what the function does to the
// skb's lifecycle. Most symbols are generic and carry no lifecycle flag.
type TrackingHook struct {
	// The kernel function to hook.
	Symbol string
	// Argument position of the skb, -1 when the symbol takes none.
	SkbArg int8
	// Argument position of the drop reason, -1 when not available.
	ReasonArg int8
	// The function frees skbs.
	Free bool
	// The function invalidates the head of skbs.
	InvHead bool
	// Attached only when Fallback's symbol could not be attached.
	FallbackFor string
}

var (
	// FreeingHooks are the symbols releasing skbs. kfree_skb_reason is
	// preferred as kfree_skb loses the drop reason, but older kernels
	// only have the latter.
	FreeingHooks = []TrackingHook{
		{
			Symbol:    "kfree_skb_reason",
			SkbArg:    0,
			ReasonArg: 1,
			Free:      true,
		},
		{
			Symbol:      "kfree_skb",
			SkbArg:      0,
			ReasonArg:   -1,
			Free:        true,
			FallbackFor: "kfree_skb_reason",
		},
		{
			Symbol:    "consume_skb",
			SkbArg:    0,
			ReasonArg: -1,
			Free:      true,
		},
		{
			Symbol:    "napi_consume_skb",
			SkbArg:    0,
			ReasonArg: -1,
			Free:      true,
		},
	}

	// InvalidatingHooks are the symbols after which the skb head is
	// expected to change before the skb is seen again.
	InvalidatingHooks = []TrackingHook{
		{
			Symbol:    "pskb_expand_head",
			SkbArg:    0,
			ReasonArg: -1,
			InvHead:   true,
		},
	}

	// GenericHooks are plain observation points along the receive and
	// transmit paths; they take an skb and do nothing special to it.
	GenericHooks = []TrackingHook{
		{Symbol: "netif_receive_skb", SkbArg: 0, ReasonArg: -1},
		{Symbol: "napi_gro_receive", SkbArg: 1, ReasonArg: -1},
		{Symbol: "__netif_receive_skb_core", SkbArg: 0, ReasonArg: -1},
		{Symbol: "dev_queue_xmit", SkbArg: 0, ReasonArg: -1},
		{Symbol: "ip_rcv", SkbArg: 0, ReasonArg: -1},
		{Symbol: "ip_output", SkbArg: 2, ReasonArg: -1},
		{Symbol: "icmp_rcv", SkbArg: 0, ReasonArg: -1},
		{Symbol: "tcp_v4_rcv", SkbArg: 0, ReasonArg: -1},
		{Symbol: "skb_push", SkbArg: 0, ReasonArg: -1},
	}
)

// DefaultHooks is the attachment list in order; freeing and invalidating
// symbols first so their configuration rows exist before generic traffic
// starts flowing.
func DefaultHooks() []TrackingHook {
	hooks := make([]TrackingHook, 0, len(FreeingHooks)+len(InvalidatingHooks)+len(GenericHooks))
	hooks = append(hooks, FreeingHooks...)
	hooks = append(hooks, InvalidatingHooks...)
	hooks = append(hooks, GenericHooks...)
	return hooks
}
