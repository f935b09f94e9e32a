package trackingMetrics

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/packetvisor/skb-lifecycle-tracking/db"
	"github.com/packetvisor/skb-lifecycle-tracking/tracking"
	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

var collectorId = "skb-tracking-default"

func init() {
	utils.InitVar("TRACKING_COLLECTOR_ID", &collectorId)
	if hostname, err := os.Hostname(); err == nil && collectorId == "skb-tracking-default" {
		collectorId = "skb-tracking-" + hostname
	}
}

func snapshot(stats *tracking.Stats) map[string]uint64 {
	return map[string]uint64{
		"ingested":          stats.Ingested.Swap(0),
		"emitted":           stats.Emitted.Swap(0),
		"untrackable":       stats.Untrackable.Swap(0),
		"admissionFailures": stats.AdmissionFailures.Swap(0),
		"migrations":        stats.Migrations.Swap(0),
		"migrationDrops":    stats.MigrationDrops.Swap(0),
		"freed":             stats.Freed.Swap(0),
	}
}

func tickerCode(tracker *tracking.Tracker) {
	log.Println("Running metrics ticker")
	counts := snapshot(tracker.Stats())
	liveRecords := tracker.Table().Len()
	utils.LogProcessing("Live records: %v counts: %v\n", liveRecords, counts)
	if !strings.Contains(db.MongoUrl, "0.0.0.0") {
		db.TrackingMetricsDbUpdates(collectorId, counts, liveRecords)
	}
	utils.LogMemoryStats()
	log.Println("Finished metrics ticker")
}

// StartMetricsTicker flushes the tracker counters every 2 minutes.
func StartMetricsTicker(tracker *tracking.Tracker) {
	ticker := time.NewTicker(2 * time.Minute)

	tickerCode(tracker) // to run this immediately
	go func() {
		for range ticker.C {
			tickerCode(tracker)
		}
	}()
}
