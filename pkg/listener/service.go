// Package listener subscribes to a dashboard API's snapshot stream over
// WebSocket and hands every received snapshot to a callback. Used by the
// collector binary; the acquisition core never depends on it.
package listener

import (
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/snapshot"
	"github.com/gorilla/websocket"
)

const (
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	// The dashboard pushes on every poll tick; a silent link this long is
	// treated as dead.
	readDeadline = 30 * time.Second
	pingInterval = 20 * time.Second
)

// StartListener connects to host's /ws endpoint and calls handleSnapshot
// for each pushed snapshot. Lost connections are retried with capped
// exponential backoff until the process is interrupted; the function
// returns on SIGINT.
func StartListener(host string, useTLS bool, handleSnapshot func(snap *snapshot.Snapshot)) {
	scheme := "ws"
	if useTLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	retries := 0
	for {
		select {
		case <-interrupt:
			log.Println("Interrupt received, shutting down...")
			return
		default:
		}

		if retries > 0 {
			delay := baseRetryDelay << min(retries-1, 10)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			log.Printf("Retrying connection in %v (attempt %d)", delay, retries+1)
			select {
			case <-time.After(delay):
			case <-interrupt:
				log.Println("Interrupt received during retry wait, shutting down...")
				return
			}
		}

		log.Printf("Connecting to %s", u.String())
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		conn, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			log.Printf("Connection failed: %v", err)
			retries++
			continue
		}

		log.Println("Connected, receiving snapshots")
		retries = 0

		if !handleConnection(conn, interrupt, handleSnapshot) {
			conn.Close()
			return
		}
		conn.Close()
		retries = 1
		log.Println("Connection lost, will retry...")
	}
}

// handleConnection pumps one established connection. Returns true when the
// connection broke and should be retried, false on clean shutdown.
func handleConnection(
	conn *websocket.Conn,
	interrupt chan os.Signal,
	handleSnapshot func(snap *snapshot.Snapshot),
) bool {
	done := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(readDeadline))

	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				} else {
					log.Printf("Connection closed: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(readDeadline))

			if messageType != websocket.TextMessage {
				continue
			}
			if snap := snapshot.SnapshotFromJsonBytes(message); snap != nil {
				handleSnapshot(snap)
			} else {
				log.Printf("Failed to parse snapshot: %s", string(message))
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-interrupt:
		log.Println("Interrupt received, closing connection...")
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Error sending close message:", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return false
	}
}
