// Package clext models the vendor OpenCL descriptor types from cl_ext.h
// (cl_device_topology_amd, cl_bus_address_amd and
// cl_motion_estimation_desc_intel) with byte layouts that match the C ABI,
// and the extension strings that advertise them.
package clext

import (
	"encoding/binary"
	"fmt"
)

// Query parameters and tag values from cl_amd_device_attribute_query.
const (
	CL_DEVICE_TOPOLOGY_AMD           uint32 = 0x4037
	CL_DEVICE_BOARD_NAME_AMD         uint32 = 0x4038
	CL_DEVICE_TOPOLOGY_TYPE_PCIE_AMD uint32 = 1
)

// TopologyTypePCIeAMD is the discriminant selecting the pcie arm.
const TopologyTypePCIeAMD = CL_DEVICE_TOPOLOGY_TYPE_PCIE_AMD

// Byte layout of cl_device_topology_amd. Both arms are TopologySize bytes.
const (
	TopologySize       = 24
	TopologyTypeOffset = 0
	TopologyDataOffset = 4
	TopologyDataWords  = 5

	PCIeUnusedOffset   = 4
	PCIeUnusedSize     = 17
	PCIeBusOffset      = 21
	PCIeDeviceOffset   = 22
	PCIeFunctionOffset = 23
)

// RawTopology is the generic arm of the topology union.
type RawTopology struct {
	Type uint32
	Data [TopologyDataWords]uint32
}

// PCIeTopology is the PCI-Express arm of the topology union.
type PCIeTopology struct {
	Bus      uint8 `json:"bus" yaml:"bus"`
	Device   uint8 `json:"device" yaml:"device"`
	Function uint8 `json:"function" yaml:"function"`
}

// String formats the location as bb:dd.f.
func (p PCIeTopology) String() string {
	return fmt.Sprintf("%02x:%02x.%x", p.Bus, p.Device, p.Function)
}

// DeviceTopologyAMD mirrors cl_device_topology_amd. The storage is six
// host-order words so that size and alignment match the C union; both arms
// are views over the same bytes.
type DeviceTopologyAMD struct {
	words [TopologySize / 4]uint32
}

// NewRawTopology builds a descriptor from the raw arm.
func NewRawTopology(typ uint32, data [TopologyDataWords]uint32) DeviceTopologyAMD {
	var t DeviceTopologyAMD
	t.words[0] = typ
	copy(t.words[1:], data[:])
	return t
}

// NewPCIeTopology builds a descriptor tagged TopologyTypePCIeAMD with the
// unused bytes zeroed.
func NewPCIeTopology(bus, device, function uint8) DeviceTopologyAMD {
	var b [TopologySize]byte
	binary.NativeEndian.PutUint32(b[TopologyTypeOffset:], TopologyTypePCIeAMD)
	b[PCIeBusOffset] = bus
	b[PCIeDeviceOffset] = device
	b[PCIeFunctionOffset] = function
	return topologyFromBytes(b)
}

// Type returns the discriminant shared by both arms.
func (t DeviceTopologyAMD) Type() uint32 {
	return t.words[0]
}

// Raw returns the generic arm. It is always readable.
func (t DeviceTopologyAMD) Raw() RawTopology {
	r := RawTopology{Type: t.words[0]}
	copy(r.Data[:], t.words[1:])
	return r
}

// PCIe returns the pcie arm. ok is false unless the descriptor is tagged
// TopologyTypePCIeAMD.
func (t DeviceTopologyAMD) PCIe() (p PCIeTopology, ok bool) {
	if t.Type() != TopologyTypePCIeAMD {
		return PCIeTopology{}, false
	}
	b := t.bytes()
	return PCIeTopology{
		Bus:      b[PCIeBusOffset],
		Device:   b[PCIeDeviceOffset],
		Function: b[PCIeFunctionOffset],
	}, true
}

// MarshalBinary encodes the descriptor in host byte order.
func (t DeviceTopologyAMD) MarshalBinary() ([]byte, error) {
	b := t.bytes()
	return b[:], nil
}

// UnmarshalBinary decodes a descriptor returned by clGetDeviceInfo.
func (t *DeviceTopologyAMD) UnmarshalBinary(data []byte) error {
	if len(data) != TopologySize {
		return &SizeError{Type: "cl_device_topology_amd", Want: TopologySize, Got: len(data)}
	}
	var b [TopologySize]byte
	copy(b[:], data)
	*t = topologyFromBytes(b)
	return nil
}

func (t DeviceTopologyAMD) bytes() [TopologySize]byte {
	var b [TopologySize]byte
	for i, w := range t.words {
		binary.NativeEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func topologyFromBytes(b [TopologySize]byte) DeviceTopologyAMD {
	var t DeviceTopologyAMD
	for i := range t.words {
		t.words[i] = binary.NativeEndian.Uint32(b[i*4:])
	}
	return t
}

// TopologyReport is the serialisable form of a topology descriptor. Data
// carries the full raw arm so Descriptor reproduces the original bytes.
type TopologyReport struct {
	Type uint32                    `json:"type" yaml:"type"`
	Data [TopologyDataWords]uint32 `json:"data" yaml:"data"`
	PCIe *PCIeTopology             `json:"pcie,omitempty" yaml:"pcie,omitempty"`
}

// Report converts the descriptor into a TopologyReport.
func (t DeviceTopologyAMD) Report() TopologyReport {
	raw := t.Raw()
	r := TopologyReport{Type: raw.Type, Data: raw.Data}
	if p, ok := t.PCIe(); ok {
		r.PCIe = &p
	}
	return r
}

// Descriptor rebuilds the descriptor from the raw words.
func (r TopologyReport) Descriptor() DeviceTopologyAMD {
	return NewRawTopology(r.Type, r.Data)
}
