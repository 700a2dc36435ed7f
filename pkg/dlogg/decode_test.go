package dlogg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deviceBlock builds a 55-byte UVR1611 payload with the given low/high byte
// pairs at 1-based input indices and output state bytes.
func deviceBlock(inputs map[int][2]byte, out1, out2 byte) []byte {
	block := make([]byte, deviceBlockLen)
	for index, pair := range inputs {
		block[2*(index-1)] = pair[0]
		block[2*(index-1)+1] = pair[1]
	}
	block[32] = out1
	block[33] = out2
	return block
}

// frameBytes concatenates the parts and appends the additive checksum.
func frameBytes(parts ...[]byte) []byte {
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

func TestDecodeChannel(t *testing.T) {
	tests := []struct {
		name  string
		low   byte
		high  byte
		kind  ChannelKind
		raw   int
		value float64
	}{
		{"unused", 0x00, 0x00, KindUnused, 0, 0},
		{"digital on", 0x01, 0x10, KindDigital, 1, 1},
		{"digital off", 0x00, 0x10, KindDigital, 0, 0},
		{"temperature 52.3", 0x0B, 0x22, KindTemperature, 523, 52.3},
		{"temperature -4.6", 0xD2, 0xAF, KindTemperature, -46, -4.6},
		{"flow 1000 l/h", 0xFA, 0x30, KindFlow, 250, 1000},
		{"radiation 842 W/m2", 0x4A, 0x63, KindRadiation, 842, 842},
		{"room temperature 27.2", 0x10, 0x71, KindTemperature, 272, 27.2},
		{"room temperature low only", 0x9B, 0x70, KindTemperature, 155, 15.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channel := decodeChannel(tt.low, tt.high)
			assert.Equal(t, tt.kind, channel.Kind)
			assert.Equal(t, tt.raw, channel.Raw)
			assert.InDelta(t, tt.value, channel.Value, 1e-9)
		})
	}
}

func TestDecodeFrameOneDL(t *testing.T) {
	inputs := map[int][2]byte{
		1: {0xD2, 0xAF}, // -4.6
		4: {0x0B, 0x22}, // 52.3, the documented example value
	}
	frame := frameBytes([]byte{DeviceUVR1611}, deviceBlock(inputs, 0b00000101, 0b00010001))

	devices, err := DecodeFrame(Frame{Bytes: frame}, LayoutOneDL)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	device := devices[0]
	assert.Equal(t, DeviceUVR1611, device.Type)
	assert.Equal(t, KindTemperature, device.Channels[0].Kind)
	assert.InDelta(t, -4.6, device.Channels[0].Value, 1e-9)
	assert.Equal(t, 4, device.Channels[3].Index)
	assert.InDelta(t, 52.3, device.Channels[3].Value, 1e-9)
	assert.Equal(t, KindUnused, device.Channels[1].Kind)

	// out1 sets A1 and A3, out2 sets A9 and A13.
	assert.True(t, device.Outputs[0])
	assert.False(t, device.Outputs[1])
	assert.True(t, device.Outputs[2])
	assert.True(t, device.Outputs[8])
	assert.True(t, device.Outputs[12])
}

func TestDecodeFrameTwoDL(t *testing.T) {
	first := deviceBlock(map[int][2]byte{4: {0x0B, 0x22}}, 0, 0)
	second := deviceBlock(map[int][2]byte{2: {0x2C, 0x21}}, 0, 0) // 30.0
	frame := frameBytes([]byte{DeviceUVR1611}, first, []byte{DeviceUVR1611}, second)

	devices, err := DecodeFrame(Frame{Bytes: frame}, LayoutTwoDL)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.InDelta(t, 52.3, devices[0].Channels[3].Value, 1e-9)
	assert.InDelta(t, 30.0, devices[1].Channels[1].Value, 1e-9)
}

func TestDecodeFrameSkipsUnsupportedBlock(t *testing.T) {
	first := deviceBlock(map[int][2]byte{4: {0x0B, 0x22}}, 0, 0)
	second := deviceBlock(nil, 0, 0)
	frame := frameBytes([]byte{DeviceUVR1611}, first, []byte{DeviceUVR61_3}, second)

	devices, err := DecodeFrame(Frame{Bytes: frame}, LayoutTwoDL)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.InDelta(t, 52.3, devices[0].Channels[3].Value, 1e-9)
}

func TestDecodeFrameAllUnsupported(t *testing.T) {
	frame := frameBytes([]byte{DeviceUVR61_3}, deviceBlock(nil, 0, 0))

	_, err := DecodeFrame(Frame{Bytes: frame}, LayoutOneDL)
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := DecodeFrame(Frame{Bytes: []byte{DeviceUVR1611, 0x00}}, LayoutOneDL)
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestDecodeImplausibleTemperatureOmitted(t *testing.T) {
	// Raw 3500 would read as 350.0 degC, beyond the plausible window.
	inputs := map[int][2]byte{7: {0xAC, 0x2D}}
	frame := frameBytes([]byte{DeviceUVR1611}, deviceBlock(inputs, 0, 0))

	devices, err := DecodeFrame(Frame{Bytes: frame}, LayoutOneDL)
	require.NoError(t, err)
	assert.Equal(t, KindImplausible, devices[0].Channels[6].Kind)
}

func TestDetectLayout(t *testing.T) {
	layout, err := DetectLayout(FrameLenOneDL, DeviceUVR1611)
	require.NoError(t, err)
	assert.Equal(t, LayoutOneDL, layout)

	layout, err = DetectLayout(FrameLenTwoDL, DeviceUVR1611)
	require.NoError(t, err)
	assert.Equal(t, LayoutTwoDL, layout)

	layout, err = DetectLayout(FrameLenTwoDL, DeviceUVR61_3)
	require.NoError(t, err)
	assert.Equal(t, LayoutTwoDL, layout)

	// A 1DL-length frame from a UVR61-3 is not a shape we know.
	_, err = DetectLayout(FrameLenOneDL, DeviceUVR61_3)
	assert.ErrorIs(t, err, ErrUnknownLayout)

	_, err = DetectLayout(42, DeviceUVR1611)
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestLayoutForMode(t *testing.T) {
	layout, ok := LayoutForMode(ModeOneDL)
	assert.True(t, ok)
	assert.Equal(t, LayoutOneDL, layout)

	layout, ok = LayoutForMode(ModeTwoDL)
	assert.True(t, ok)
	assert.Equal(t, LayoutTwoDL, layout)

	_, ok = LayoutForMode(0x42)
	assert.False(t, ok)
}
