package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/dlogg"
)

// ChannelReading is one labelled temperature inside a Snapshot.
type ChannelReading struct {
	Device  int     `json:"device"`  // 1-based device block number
	Channel int     `json:"channel"` // 1-based controller input, T<n>
	Label   string  `json:"label"`
	Celsius float64 `json:"celsius"`
}

// Snapshot is the latest fully decoded reading set. A Snapshot is built
// once, published to the store and never mutated afterwards, so readers may
// share its maps and slices freely.
type Snapshot struct {
	Timestamp    time.Time          `json:"timestamp"`
	Port         string             `json:"port"`
	DevicesFound int                `json:"devices_found"`
	Values       map[string]float64 `json:"values"`
	Channels     []ChannelReading   `json:"channels"`
	Outputs      map[string]bool    `json:"outputs"`
}

// Build constructs a Snapshot from decoded device blocks. Labels come from
// the injected sensor label table keyed by controller input number; inputs
// without a label fall back to "T<n>". Labels are unique within a snapshot:
// on collision the first device wins, same for output states.
func Build(port string, at time.Time, devices []dlogg.Device, labels map[int]string) Snapshot {
	snap := Snapshot{
		Timestamp:    at,
		Port:         port,
		DevicesFound: len(devices),
		Values:       make(map[string]float64),
		Outputs:      make(map[string]bool),
	}

	for deviceNo, device := range devices {
		for _, channel := range device.Channels {
			if channel.Kind != dlogg.KindTemperature {
				continue
			}
			label, ok := labels[channel.Index]
			if !ok {
				label = fmt.Sprintf("T%d", channel.Index)
			}
			if _, taken := snap.Values[label]; taken {
				continue
			}
			snap.Values[label] = channel.Value
			snap.Channels = append(snap.Channels, ChannelReading{
				Device:  deviceNo + 1,
				Channel: channel.Index,
				Label:   label,
				Celsius: channel.Value,
			})
		}

		for i, on := range device.Outputs {
			key := fmt.Sprintf("A%d", i+1)
			if _, taken := snap.Outputs[key]; taken {
				continue
			}
			snap.Outputs[key] = on
		}
	}

	return snap
}

func (s *Snapshot) ToJsonBytes() []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return data
}

func SnapshotFromJsonBytes(data []byte) *Snapshot {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return &snap
}
