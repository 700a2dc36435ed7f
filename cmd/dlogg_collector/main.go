// Collector subscribes to the dashboard API's snapshot stream and logs
// every reading downstream. Depends on the dashboard API being online.
package main

import (
	"log"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/config"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/listener"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/pathing"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/snapshot"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := config.LoadCollectorConfig(); err != nil {
		log.Fatalf("Failed to load collector config: %v", err)
	}
	cfg := config.ActiveCollectorConfig

	// Subscribe with automatic reconnect; returns on interrupt.
	listener.StartListener(cfg.DashboardAPIHost, cfg.TLSEnabled, handleSnapshot)
}

func handleSnapshot(snap *snapshot.Snapshot) {
	log.Printf("%s: %d device(s), %d value(s): %s",
		snap.Timestamp.Format("2006-01-02 15:04:05"),
		snap.DevicesFound,
		len(snap.Values),
		string(snap.ToJsonBytes()),
	)
}
