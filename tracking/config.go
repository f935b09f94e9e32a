package tracking

// TrackingConfig provides hints about what a probed function does to the
// skbs it takes. Most probed functions only look at the skb and need no
// entry here.
type TrackingConfig struct {
	// Function is freeing skbs.
	Free bool
	// Function is invalidating the head of skbs.
	InvHead bool
}

// ConfigMap maps a probed symbol address to its tracking configuration. It
// is built once, before any sample is processed, and never written again;
// lookups on the hot path need no synchronization.
type ConfigMap struct {
	configs map[uint64]TrackingConfig
}

// NewConfigMap snapshots the given configuration rows.
func NewConfigMap(configs map[uint64]TrackingConfig) *ConfigMap {
	snapshot := make(map[uint64]TrackingConfig, len(configs))
	for ksym, cfg := range configs {
		snapshot[ksym] = cfg
	}
	return &ConfigMap{configs: snapshot}
}

// Lookup never fails: a symbol without a row is a generic function merely
// taking an skb as a parameter, with no lifecycle effect.
func (c *ConfigMap) Lookup(ksym uint64) TrackingConfig {
	return c.configs[ksym]
}

func (c *ConfigMap) Len() int {
	return len(c.configs)
}
