package dlogg

import (
	"errors"
	"fmt"
)

// ChannelKind classifies what a UVR1611 input slot carries. The unit/type
// sits in bits 4..6 of the high byte of each two-byte input.
type ChannelKind int

const (
	KindUnused      ChannelKind = iota
	KindDigital                 // on/off level, value 0 or 1
	KindTemperature             // degrees Celsius, one decimal
	KindFlow                    // volume flow, litres per hour
	KindRadiation               // solar radiation, W/m2
	KindImplausible             // temperature outside the plausible window
	KindUnknown
)

func (k ChannelKind) String() string {
	switch k {
	case KindUnused:
		return "unused"
	case KindDigital:
		return "digital"
	case KindTemperature:
		return "temperature"
	case KindFlow:
		return "flow"
	case KindRadiation:
		return "radiation"
	case KindImplausible:
		return "implausible"
	default:
		return "unknown"
	}
}

// Channel is one decoded controller input.
type Channel struct {
	Index int // 1-based, T1..T16
	Kind  ChannelKind
	Raw   int     // sign-extended 12-bit raw value
	Value float64 // calibrated per Kind: 0.1 degC, l/h, W/m2 or 0/1
}

// Device is one decoded device block of a current-data frame.
type Device struct {
	Type     byte
	Channels [16]Channel
	Outputs  [13]bool // A1..A13
}

// DecodeFrame maps a validated frame's bytes to its devices, purely as a
// function of (bytes, layout). UVR61-3 blocks are counted in the frame
// shape but not value-decoded, matching the controllers this dashboard
// supports; a frame with no decodable block yields ErrUnsupportedDevice.
func DecodeFrame(frame Frame, layout RecordLayout) ([]Device, error) {
	if len(frame.Bytes) < layout.FrameLen() || layout == LayoutUnknown {
		return nil, fmt.Errorf("%w: got %d bytes for %s", ErrFrameTooShort, len(frame.Bytes), layout)
	}

	devices := make([]Device, 0, layout.DeviceCount())
	for i := 0; i < layout.DeviceCount(); i++ {
		offset := i * (1 + deviceBlockLen)
		deviceType := frame.Bytes[offset]
		block := frame.Bytes[offset+1 : offset+1+deviceBlockLen]

		device, err := decodeDeviceBlock(deviceType, block)
		if err != nil {
			if errors.Is(err, ErrUnsupportedDevice) {
				continue
			}
			return nil, err
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedDevice, frame.Bytes[0])
	}
	return devices, nil
}

func decodeDeviceBlock(deviceType byte, block []byte) (Device, error) {
	if deviceType != DeviceUVR1611 {
		return Device{}, fmt.Errorf("%w: 0x%02X", ErrUnsupportedDevice, deviceType)
	}

	device := Device{Type: deviceType}

	// Inputs T1..T16 occupy the first 32 bytes as low/high pairs.
	for i := 0; i < 16; i++ {
		channel := decodeChannel(block[2*i], block[2*i+1])
		channel.Index = i + 1
		if channel.Kind == KindTemperature && (channel.Value < TempMinC || channel.Value > TempMaxC) {
			channel.Kind = KindImplausible
		}
		device.Channels[i] = channel
	}

	// Output states: byte 32 carries A1..A8, the low bits of byte 33 A9..A13.
	for bit := 0; bit < 8; bit++ {
		device.Outputs[bit] = block[32]>>bit&1 == 1
	}
	for bit := 0; bit < 5; bit++ {
		device.Outputs[bit+8] = block[33]>>bit&1 == 1
	}

	return device, nil
}

// decodeChannel decodes one two-byte input. Temperatures are 12-bit two's
// complement in 0.1 degC steps; the 0b111 type is the room sensor special
// case carrying its value solely in the low byte plus one carry bit.
func decodeChannel(low, high byte) Channel {
	raw12 := int(high&0x0F)<<8 | int(low)
	negative := high&0x80 != 0

	switch high >> 4 & 0x07 {
	case 0b000:
		return Channel{Kind: KindUnused}
	case 0b001:
		bit := 0.0
		if raw12 != 0 {
			bit = 1.0
		}
		return Channel{Kind: KindDigital, Raw: raw12, Value: bit}
	case 0b010:
		raw := raw12
		if negative {
			raw = -((^raw12 & 0x0FFF) + 1)
		}
		return Channel{Kind: KindTemperature, Raw: raw, Value: float64(raw) / 10}
	case 0b011:
		return Channel{Kind: KindFlow, Raw: raw12, Value: float64(raw12) * 4}
	case 0b110:
		return Channel{Kind: KindRadiation, Raw: raw12, Value: float64(raw12)}
	case 0b111:
		raw := int(low)
		if high&0x01 != 0 {
			raw += 256
		}
		return Channel{Kind: KindTemperature, Raw: raw, Value: float64(raw) / 10}
	default:
		return Channel{Kind: KindUnknown, Raw: raw12}
	}
}
