// Dashboard API reads the D-LOGG serial port and serves the latest decoded
// temperatures over HTTP and WebSocket.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/config"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/pathing"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/port_reader"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/snapshot"
	"github.com/gorilla/websocket"
)

var (
	store       *snapshot.Store
	dloggReader *port_reader.DloggReader
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard runs on the local network only
	},
}

// ws clients for broadcasting live snapshots
var (
	wsClients      = make(map[*websocket.Conn]bool)
	wsClientsMutex sync.RWMutex
)

// currentResponse is the payload of /api/current. Ok is false before the
// first decoded frame and while the serial link is down; stale values are
// still included so callers can judge freshness by the timestamp.
type currentResponse struct {
	Ok           bool               `json:"ok"`
	Timestamp    *time.Time         `json:"timestamp,omitempty"`
	Port         string             `json:"port,omitempty"`
	DevicesFound int                `json:"devices_found"`
	Values       map[string]float64 `json:"values"`
	Outputs      map[string]bool    `json:"outputs,omitempty"`
}

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := config.LoadDashboardAPIConfig(); err != nil {
		log.Fatalf("Failed to load dashboard API config: %v", err)
	}
	cfg := config.ActiveDashboardAPIConfig

	store = snapshot.NewStore()
	dloggReader = port_reader.NewDloggReader(port_reader.ReaderConfig{
		Port:         cfg.SerialDevice,
		Baudrate:     cfg.Baudrate,
		PollInterval: cfg.PollInterval(),
		ReadTimeout:  cfg.ReadTimeout(),
		Labels:       cfg.SensorLabelTable(),
	}, store)

	dloggReader.StartReading(
		func(snap *snapshot.Snapshot) {
			BroadcastToWebSockets(snap)
		},
		func(err error) {
			// Connection failures are retried with backoff by the reader;
			// the API keeps serving the last good snapshot meanwhile.
			log.Printf("D-LOGG connection error: %v", err)
		},
	)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"message": "D-LOGG Solarthermie Dashboard API",
			"status":  "running",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	http.HandleFunc("/api/current", func(w http.ResponseWriter, r *http.Request) {
		snap, hasData := store.Current()

		response := currentResponse{
			Ok:     hasData && store.Connected(),
			Values: map[string]float64{},
		}
		if hasData {
			response.Timestamp = &snap.Timestamp
			response.Port = snap.Port
			response.DevicesFound = snap.DevicesFound
			response.Values = snap.Values
			response.Outputs = snap.Outputs
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	http.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dloggReader.Stats())
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		AddWebSocketClient(conn)

		// Send current snapshot immediately if available
		if snap, ok := store.Current(); ok {
			conn.WriteMessage(websocket.TextMessage, snap.ToJsonBytes())
		}

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				RemoveWebSocketClient(conn)
				break
			}
		}
	})

	// Stop polling cleanly on SIGINT/SIGTERM so the port is released.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("Shutting down...")
		dloggReader.StopReading()
		os.Exit(0)
	}()

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	log.Printf("Starting D-LOGG Dashboard API on %s (serial: %s)", listener, cfg.SerialDevice)
	log.Fatal(http.ListenAndServe(listener, nil))
}

func BroadcastToWebSockets(snap *snapshot.Snapshot) {
	wsClientsMutex.RLock()
	clients := make([]*websocket.Conn, 0, len(wsClients))
	for client := range wsClients {
		clients = append(clients, client)
	}
	wsClientsMutex.RUnlock()

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, snap.ToJsonBytes()); err != nil {
			RemoveWebSocketClient(client)
		}
	}
}

func AddWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	wsClients[conn] = true
	wsClientsMutex.Unlock()
}

func RemoveWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	delete(wsClients, conn)
	wsClientsMutex.Unlock()
	conn.Close()
}
