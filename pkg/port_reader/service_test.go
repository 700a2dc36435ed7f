package port_reader

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/dlogg"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort scripts the D-LOGG request/response behavior: a mode query is
// answered with the mode byte, each current-data request queues the next
// scripted frame. An empty receive queue reads as io.EOF, matching the
// inter-character timeout of the real port.
type fakePort struct {
	mu        sync.Mutex
	modeReply byte
	frames    [][]byte // queued responses; the last one repeats
	pending   []byte
	failReads bool
	closed    bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	for _, cmd := range b {
		switch cmd {
		case dlogg.CmdQueryMode:
			if p.modeReply != 0 {
				p.pending = append(p.pending, p.modeReply)
			}
		case dlogg.CmdCurrentData:
			if len(p.frames) > 0 {
				p.pending = append(p.pending, p.frames[0]...)
				if len(p.frames) > 1 {
					p.frames = p.frames[1:]
				}
			}
		}
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failReads {
		return 0, errors.New("input/output error")
	}
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) setFailReads(fail bool) {
	p.mu.Lock()
	p.failReads = fail
	p.mu.Unlock()
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func checksummed(parts ...[]byte) []byte {
	var frame []byte
	for _, part := range parts {
		frame = append(frame, part...)
	}
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return append(frame, sum)
}

func testFrame(t4Low, t4High byte) []byte {
	block := make([]byte, 55)
	block[6] = t4Low
	block[7] = t4High
	return checksummed([]byte{dlogg.DeviceUVR1611}, block)
}

func testConfig() ReaderConfig {
	return ReaderConfig{
		Port:         "/dev/ttyFAKE",
		Baudrate:     115200,
		PollInterval: 10 * time.Millisecond,
		ReadTimeout:  30 * time.Millisecond,
		Labels:       map[int]string{4: "Warmwasser"},
	}
}

func newTestReader(t *testing.T, open func(cfg ReaderConfig) (io.ReadWriteCloser, error)) (*DloggReader, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore()
	reader := NewDloggReader(testConfig(), store)
	reader.openPort = open
	t.Cleanup(reader.StopReading)
	return reader, store
}

func TestReaderDecodesFrameIntoStore(t *testing.T) {
	port := &fakePort{
		modeReply: dlogg.ModeOneDL,
		frames:    [][]byte{testFrame(0x0B, 0x22)}, // T4 = 52.3
	}
	reader, store := newTestReader(t, func(ReaderConfig) (io.ReadWriteCloser, error) {
		return port, nil
	})

	reader.StartReading(nil, func(err error) { t.Errorf("unexpected error: %v", err) })

	require.Eventually(t, store.Ok, time.Second, 5*time.Millisecond)
	snap, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyFAKE", snap.Port)
	assert.Equal(t, 1, snap.DevicesFound)
	assert.InDelta(t, 52.3, snap.Values["Warmwasser"], 1e-9)

	stats := reader.Stats()
	assert.Greater(t, stats.FramesDecoded, uint64(0))
	assert.True(t, stats.Connected)
}

func TestReaderCorruptChecksumNeverUpdatesStore(t *testing.T) {
	frame := testFrame(0x0B, 0x22)
	frame[len(frame)-1] ^= 0xFF
	port := &fakePort{modeReply: dlogg.ModeOneDL, frames: [][]byte{frame}}

	reader, store := newTestReader(t, func(ReaderConfig) (io.ReadWriteCloser, error) {
		return port, nil
	})
	reader.StartReading(nil, func(error) {})

	require.Eventually(t, func() bool {
		return reader.Stats().FramingErrors > 0
	}, time.Second, 5*time.Millisecond)

	_, ok := store.Current()
	assert.False(t, ok)
}

func TestReaderUnknownLayoutDropsFrame(t *testing.T) {
	// A 57-byte frame from a UVR61-3 assembles cleanly but matches no
	// known layout.
	block := make([]byte, 55)
	frame := checksummed([]byte{dlogg.DeviceUVR61_3}, block)
	port := &fakePort{frames: [][]byte{frame}}

	reader, store := newTestReader(t, func(ReaderConfig) (io.ReadWriteCloser, error) {
		return port, nil
	})
	reader.StartReading(nil, func(error) {})

	require.Eventually(t, func() bool {
		return reader.Stats().UnknownLayouts > 0
	}, time.Second, 5*time.Millisecond)

	_, ok := store.Current()
	assert.False(t, ok)
}

func TestReaderReconnectsAndResumes(t *testing.T) {
	first := &fakePort{modeReply: dlogg.ModeOneDL, frames: [][]byte{testFrame(0x0B, 0x22)}} // 52.3
	second := &fakePort{modeReply: dlogg.ModeOneDL, frames: [][]byte{testFrame(0x2C, 0x21)}} // 30.0

	var opens int32
	reader, store := newTestReader(t, func(ReaderConfig) (io.ReadWriteCloser, error) {
		switch atomic.AddInt32(&opens, 1) {
		case 1:
			return first, nil
		case 2:
			// One failed open forces a real backoff window, so the
			// disconnected state is observable.
			return nil, errors.New("no such device")
		default:
			return second, nil
		}
	})

	var errCalls int32
	reader.StartReading(nil, func(error) { atomic.AddInt32(&errCalls, 1) })

	require.Eventually(t, store.Ok, time.Second, 5*time.Millisecond)
	before, _ := store.Current()

	// Kill the link. The stale snapshot must stay readable while Ok drops.
	first.setFailReads(true)
	require.Eventually(t, func() bool { return !store.Connected() }, time.Second, 5*time.Millisecond)
	stale, ok := store.Current()
	require.True(t, ok)
	assert.InDelta(t, 52.3, stale.Values["Warmwasser"], 1e-9)
	assert.False(t, store.Ok())

	// After reconnect, fresh data with a newer timestamp flows again.
	require.Eventually(t, func() bool {
		snap, ok := store.Current()
		return ok && snap.Timestamp.After(before.Timestamp) && snap.Values["Warmwasser"] == 30.0
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, store.Ok())
	assert.Greater(t, reader.Stats().Reconnects, uint64(0))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&errCalls), int32(1))
}

func TestReaderStopClosesPort(t *testing.T) {
	port := &fakePort{modeReply: dlogg.ModeOneDL, frames: [][]byte{testFrame(0x0B, 0x22)}}
	reader, store := newTestReader(t, func(ReaderConfig) (io.ReadWriteCloser, error) {
		return port, nil
	})

	reader.StartReading(nil, func(error) {})
	require.Eventually(t, store.Ok, time.Second, 5*time.Millisecond)

	reader.StopReading()
	require.Eventually(t, port.isClosed, time.Second, 5*time.Millisecond)
}
