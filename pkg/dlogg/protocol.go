// Package dlogg implements the D-LOGG data logger protocol used by
// Technische Alternative UVR controllers: reassembling current-data frames
// from the raw serial byte stream, classifying their record layout and
// decoding the per-channel sensor values.
package dlogg

import "errors"

// Request bytes written to the data logger.
const (
	CmdQueryMode   byte = 0x81 // replies with one mode byte
	CmdCurrentData byte = 0xAB // replies with a current-data frame
)

// Mode bytes returned for CmdQueryMode.
const (
	ModeOneDL byte = 0xA8 // one device connected
	ModeTwoDL byte = 0xD1 // two devices connected
)

// Device type bytes. Each device block inside a frame opens with one of
// these, so they double as the sync markers the frame assembler scans for.
const (
	DeviceUVR1611 byte = 0x80
	DeviceUVR61_3 byte = 0x90
)

const (
	// Payload bytes per device block, after the type byte.
	deviceBlockLen = 55

	// FrameLenOneDL is [type][55 data][checksum].
	FrameLenOneDL = 57
	// FrameLenTwoDL is [type1][55 data][type2][55 data][checksum].
	FrameLenTwoDL = 113
)

// Plausible temperature window in degrees Celsius. Temperatures outside it
// are treated as decode noise from a misaligned frame and the channel is
// omitted from the reading set.
const (
	TempMinC = -50.0
	TempMaxC = 300.0
)

var (
	ErrUnknownLayout     = errors.New("dlogg: frame matches no known record layout")
	ErrFrameTooShort     = errors.New("dlogg: frame shorter than its layout declares")
	ErrChecksum          = errors.New("dlogg: checksum mismatch")
	ErrUnsupportedDevice = errors.New("dlogg: unsupported device type")
)

// RecordLayout identifies one of the two physical record shapes the D-LOGG
// emits for current data.
type RecordLayout int

const (
	LayoutUnknown RecordLayout = iota
	LayoutOneDL                // single device block ("1DL")
	LayoutTwoDL                // two device blocks ("2DL")
)

func (l RecordLayout) String() string {
	switch l {
	case LayoutOneDL:
		return "1DL"
	case LayoutTwoDL:
		return "2DL"
	default:
		return "unknown"
	}
}

// FrameLen returns the total frame length of the layout including type
// byte(s) and the trailing checksum.
func (l RecordLayout) FrameLen() int {
	switch l {
	case LayoutOneDL:
		return FrameLenOneDL
	case LayoutTwoDL:
		return FrameLenTwoDL
	default:
		return 0
	}
}

// DeviceCount returns how many device blocks the layout carries.
func (l RecordLayout) DeviceCount() int {
	switch l {
	case LayoutOneDL:
		return 1
	case LayoutTwoDL:
		return 2
	default:
		return 0
	}
}

// LayoutForMode maps a CmdQueryMode reply byte to its record layout.
func LayoutForMode(mode byte) (RecordLayout, bool) {
	switch mode {
	case ModeOneDL:
		return LayoutOneDL, true
	case ModeTwoDL:
		return LayoutTwoDL, true
	default:
		return LayoutUnknown, false
	}
}

type layoutKey struct {
	frameLen      int
	discriminator byte
}

// Frame length plus the leading device type byte classify a frame
// deterministically. A third layout would be one more row here.
var layoutTable = map[layoutKey]RecordLayout{
	{FrameLenOneDL, DeviceUVR1611}: LayoutOneDL,
	{FrameLenTwoDL, DeviceUVR1611}: LayoutTwoDL,
	{FrameLenTwoDL, DeviceUVR61_3}: LayoutTwoDL,
}

// DetectLayout classifies an assembled frame by its length and leading
// device type byte. Combinations outside the layout table yield
// ErrUnknownLayout.
func DetectLayout(frameLen int, discriminator byte) (RecordLayout, error) {
	layout, ok := layoutTable[layoutKey{frameLen, discriminator}]
	if !ok {
		return LayoutUnknown, ErrUnknownLayout
	}
	return layout, nil
}

func isSyncByte(b byte) bool {
	return b == DeviceUVR1611 || b == DeviceUVR61_3
}

// checksumOK verifies the additive frame checksum: the last byte must equal
// the sum of all preceding bytes modulo 256.
func checksumOK(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	var sum byte
	for _, b := range frame[:len(frame)-1] {
		sum += b
	}
	return sum == frame[len(frame)-1]
}
