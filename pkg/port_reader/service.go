package port_reader

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/dlogg"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/snapshot"
	"github.com/jacobsa/go-serial/serial"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second

	// Inter-character timeout for a single serial read. Bounds every Read
	// call so the acquisition goroutine can never stall indefinitely.
	interCharTimeoutMs = 200
)

// Initialize a new DloggReader client.
func NewDloggReader(cfg ReaderConfig, store *snapshot.Store) *DloggReader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}

	return &DloggReader{
		cfg:        cfg,
		store:      store,
		asm:        dlogg.NewAssembler(),
		stop:       make(chan struct{}),
		openPort:   openSerialPort,
		seenShapes: make(map[shapeKey]struct{}),
	}
}

func openSerialPort(cfg ReaderConfig) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:              cfg.Port,
		BaudRate:              cfg.Baudrate,
		DataBits:              8,
		StopBits:              1,
		InterCharacterTimeout: interCharTimeoutMs,
		MinimumReadSize:       0,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// StartReading launches the acquisition goroutine. handleSnapshot runs in
// its own goroutine for each published snapshot; handleError is called for
// connection-level failures (which are retried, never fatal).
func (r *DloggReader) StartReading(
	handleSnapshot func(snap *snapshot.Snapshot),
	handleError func(err error),
) {
	go r.run(handleSnapshot, handleError)
}

// StopReading signals a graceful shutdown: the in-flight poll finishes or
// times out, the port is closed and no further cycles are scheduled.
func (r *DloggReader) StopReading() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *DloggReader) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return Stats{
		FramesDecoded:  r.framesDecoded,
		FramingErrors:  r.framingErrs,
		DecodeErrors:   r.decodeErrs,
		UnknownLayouts: r.unknownLayout,
		Reconnects:     r.reconnects,
		Connected:      r.store.Connected(),
		LastError:      r.lastErr,
	}
}

func (r *DloggReader) run(
	handleSnapshot func(snap *snapshot.Snapshot),
	handleError func(err error),
) {
	defer r.disconnect()

	attempt := 0
	for {
		if err := r.connect(); err != nil {
			handleError(err)
			if !r.awaitReconnect(attempt, err) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		r.pollUntilFailure(handleSnapshot)

		select {
		case <-r.stop:
			log.Println("Stop signal received, disconnecting")
			return
		default:
		}

		// The link died mid-session; go back around through reconnect.
		r.disconnect()
		r.store.SetConnected(false)
		r.statsMu.Lock()
		r.reconnects++
		r.statsMu.Unlock()
	}
}

// pollUntilFailure runs the fixed-cadence acquisition cycle until the link
// errors out or a stop is requested. Decode-level failures never leave this
// loop; only transport errors do.
func (r *DloggReader) pollUntilFailure(handleSnapshot func(snap *snapshot.Snapshot)) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		err := r.pollOnce(handleSnapshot)
		r.foldFramingErrors()
		if err != nil {
			log.Printf("Serial link failed on %s: %v", r.cfg.Port, err)
			r.noteError(err)
			return
		}

		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
	}
}

// pollOnce requests and processes one current-data frame. A tick with no
// decodable frame is normal (idle line, noise, checksum loss) and returns
// nil; only transport errors are returned.
func (r *DloggReader) pollOnce(handleSnapshot func(snap *snapshot.Snapshot)) error {
	if _, err := r.serialPort.Write([]byte{dlogg.CmdCurrentData}); err != nil {
		return fmt.Errorf("request current data: %w", err)
	}

	deadline := time.Now().Add(r.cfg.ReadTimeout)
	buf := make([]byte, 256)

	for time.Now().Before(deadline) {
		n, err := r.serialPort.Read(buf)
		if n > 0 {
			if frames := r.asm.Feed(buf[:n]); len(frames) > 0 {
				r.publish(frames[len(frames)-1], handleSnapshot)
				return nil
			}
			continue
		}
		if err == io.EOF || err == nil {
			// Inter-character timeout, nothing more is coming this tick.
			break
		}
		return fmt.Errorf("read current data: %w", err)
	}

	// Settle what is buffered; anything partial is discarded so it cannot
	// prefix the next tick's frame.
	if frames := r.asm.Flush(); len(frames) > 0 {
		r.publish(frames[len(frames)-1], handleSnapshot)
	}
	return nil
}

// publish runs layout detection and decoding for one assembled frame and
// updates the snapshot store on full success. Failures drop the frame and
// leave the last good snapshot in place.
func (r *DloggReader) publish(frame dlogg.Frame, handleSnapshot func(snap *snapshot.Snapshot)) {
	layout, err := dlogg.DetectLayout(len(frame.Bytes), frame.Discriminator())
	if err != nil {
		r.noteUnknownLayout(len(frame.Bytes), frame.Discriminator())
		return
	}

	devices, err := dlogg.DecodeFrame(frame, layout)
	if err != nil {
		log.Printf("Dropping %s frame: %v", layout, err)
		r.noteDecodeError(err)
		return
	}

	snap := snapshot.Build(r.cfg.Port, time.Now(), devices, r.cfg.Labels)
	r.store.Update(snap)
	r.noteFrameDecoded()

	if handleSnapshot != nil {
		go handleSnapshot(&snap)
	}
}

// connect opens the port and seeds the session layout from a mode query.
func (r *DloggReader) connect() error {
	port, err := r.openPort(r.cfg)
	if err != nil {
		return err
	}
	r.serialPort = port
	r.asm.Reset()
	r.queryMode()
	r.store.SetConnected(true)
	log.Printf("Connected to D-LOGG on %s", r.cfg.Port)
	return nil
}

func (r *DloggReader) disconnect() {
	if r.serialPort != nil {
		r.serialPort.Close()
		r.serialPort = nil
		log.Println("Disconnected from D-LOGG port")
	}
}

// queryMode asks the logger whether it runs one or two devices and seeds
// the assembler's layout expectation. Best effort: a silent logger just
// means the first frame decides.
func (r *DloggReader) queryMode() {
	if _, err := r.serialPort.Write([]byte{dlogg.CmdQueryMode}); err != nil {
		return
	}

	reply := make([]byte, 1)
	n, err := r.serialPort.Read(reply)
	if err != nil || n != 1 {
		return
	}

	if layout, ok := dlogg.LayoutForMode(reply[0]); ok {
		r.asm.SetLayoutHint(layout)
		log.Printf("D-LOGG reports mode 0x%02X (%s)", reply[0], layout)
	}
}

// awaitReconnect sleeps the capped exponential backoff delay. Returns false
// when a stop arrived during the wait.
func (r *DloggReader) awaitReconnect(attempt int, cause error) bool {
	r.statsMu.Lock()
	r.reconnects++
	r.statsMu.Unlock()

	delay := reconnectBaseDelay << min(attempt, 10)
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	log.Printf("Reconnecting to %s in %v: %v", r.cfg.Port, delay, cause)

	select {
	case <-r.stop:
		return false
	case <-time.After(delay):
		return true
	}
}

func (r *DloggReader) noteError(err error) {
	r.statsMu.Lock()
	r.lastErr = err.Error()
	r.statsMu.Unlock()
}

func (r *DloggReader) noteFrameDecoded() {
	r.statsMu.Lock()
	r.framesDecoded++
	r.statsMu.Unlock()
}

// foldFramingErrors copies the assembler's counter into the stats under the
// lock. The assembler itself is only ever touched by the loop goroutine.
func (r *DloggReader) foldFramingErrors() {
	r.statsMu.Lock()
	r.framingErrs = r.asm.FramingErrors()
	r.statsMu.Unlock()
}

func (r *DloggReader) noteDecodeError(err error) {
	r.statsMu.Lock()
	r.decodeErrs++
	r.lastErr = err.Error()
	r.statsMu.Unlock()
}

// noteUnknownLayout counts every unknown frame shape but logs each distinct
// (length, discriminator) pair only once to keep a misbehaving device from
// flooding the journal.
func (r *DloggReader) noteUnknownLayout(frameLen int, discriminator byte) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	r.unknownLayout++
	key := shapeKey{frameLen, discriminator}
	if _, seen := r.seenShapes[key]; !seen {
		r.seenShapes[key] = struct{}{}
		log.Printf("Unknown frame shape: len=%d discriminator=0x%02X", frameLen, discriminator)
	}
}
