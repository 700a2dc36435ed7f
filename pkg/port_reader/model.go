package port_reader

import (
	"io"
	"sync"
	"time"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/dlogg"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/snapshot"
)

// ReaderConfig carries the serial and polling settings for a DloggReader.
type ReaderConfig struct {
	Port         string
	Baudrate     uint
	PollInterval time.Duration
	ReadTimeout  time.Duration
	// Labels maps controller input numbers to display labels for snapshot
	// construction. Read-only, injected at startup.
	Labels map[int]string
}

// DloggReader owns the serial connection to the D-LOGG exclusively and
// drives the acquisition pipeline: poll, reassemble, classify, decode,
// publish to the snapshot store. Everything else in the process only ever
// reads from the store.
type DloggReader struct {
	cfg   ReaderConfig
	store *snapshot.Store

	serialPort io.ReadWriteCloser
	asm        *dlogg.Assembler

	stopOnce sync.Once
	stop     chan struct{}

	// openPort is swappable so tests can plug in a scripted fake port.
	openPort func(cfg ReaderConfig) (io.ReadWriteCloser, error)

	statsMu       sync.Mutex
	framesDecoded uint64
	framingErrs   uint64
	decodeErrs    uint64
	unknownLayout uint64
	reconnects    uint64
	lastErr       string
	seenShapes    map[shapeKey]struct{}
}

type shapeKey struct {
	frameLen      int
	discriminator byte
}

// Stats is a point-in-time view of the reader's counters.
type Stats struct {
	FramesDecoded  uint64 `json:"frames_decoded"`
	FramingErrors  uint64 `json:"framing_errors"`
	DecodeErrors   uint64 `json:"decode_errors"`
	UnknownLayouts uint64 `json:"unknown_layouts"`
	Reconnects     uint64 `json:"reconnects"`
	Connected      bool   `json:"connected"`
	LastError      string `json:"last_error,omitempty"`
}
