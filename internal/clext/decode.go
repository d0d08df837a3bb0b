package clext

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Kind names a descriptor type for Decode.
type Kind string

const (
	KindTopology         Kind = "topology"
	KindBusAddress       Kind = "busaddr"
	KindMotionEstimation Kind = "me"
)

// Kinds lists the accepted Kind values.
var Kinds = []Kind{KindTopology, KindBusAddress, KindMotionEstimation}

// ParseKind accepts a Kind name or the C type name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "topology", "cl_device_topology_amd":
		return KindTopology, nil
	case "busaddr", "cl_bus_address_amd":
		return KindBusAddress, nil
	case "me", "cl_motion_estimation_desc_intel":
		return KindMotionEstimation, nil
	}
	return "", fmt.Errorf("unknown descriptor kind %q (want one of %v)", s, Kinds)
}

// Size returns the encoded size of the descriptor.
func (k Kind) Size() int {
	switch k {
	case KindTopology:
		return TopologySize
	case KindBusAddress:
		return BusAddressSize
	case KindMotionEstimation:
		return MotionEstimationDescSize
	}
	return 0
}

// Decoded holds the result of Decode. Exactly one descriptor field is set.
// Warning carries a Validate failure; the descriptor is still returned.
type Decoded struct {
	Kind             Kind                       `json:"kind" yaml:"kind"`
	Size             int                        `json:"size" yaml:"size"`
	Topology         *TopologyReport            `json:"topology,omitempty" yaml:"topology,omitempty"`
	BusAddress       *BusAddressAMD             `json:"busAddress,omitempty" yaml:"bus_address,omitempty"`
	MotionEstimation *MotionEstimationDescIntel `json:"motionEstimation,omitempty" yaml:"motion_estimation,omitempty"`
	Warning          string                     `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Decode interprets data as the descriptor named by kind.
func Decode(kind Kind, data []byte) (*Decoded, error) {
	out := &Decoded{Kind: kind, Size: len(data)}

	switch kind {
	case KindTopology:
		var t DeviceTopologyAMD
		if err := t.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		report := t.Report()
		out.Topology = &report
		if report.PCIe == nil {
			out.Warning = fmt.Sprintf("topology type %d is not PCIe; only the raw arm is meaningful", report.Type)
		}
	case KindBusAddress:
		var a BusAddressAMD
		if err := a.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		out.BusAddress = &a
		if err := a.Validate(); err != nil {
			out.Warning = err.Error()
		}
	case KindMotionEstimation:
		var d MotionEstimationDescIntel
		if err := d.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		out.MotionEstimation = &d
		if err := d.Validate(); err != nil {
			out.Warning = strings.ReplaceAll(err.Error(), "\n", "; ")
		}
	default:
		return nil, fmt.Errorf("unknown descriptor kind %q", kind)
	}

	return out, nil
}

// DecodeHex is Decode for a hex string. Whitespace, colons and a leading
// 0x or 0X are ignored.
func DecodeHex(kind Kind, s string) (*Decoded, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return Decode(kind, data)
}
