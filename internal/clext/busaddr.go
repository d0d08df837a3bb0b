package clext

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags and command types from cl_amd_bus_addressable_memory.
const (
	CL_MEM_BUS_ADDRESSABLE_AMD   uint64 = 1 << 30
	CL_MEM_EXTERNAL_PHYSICAL_AMD uint64 = 1 << 31

	CL_COMMAND_WAIT_SIGNAL_AMD           uint32 = 0x4080
	CL_COMMAND_WRITE_SIGNAL_AMD          uint32 = 0x4081
	CL_COMMAND_MAKE_BUFFERS_RESIDENT_AMD uint32 = 0x4082
)

// BusAddressSize is the encoded size of cl_bus_address_amd.
const BusAddressSize = 16

// ErrUnpairedBusAddress reports a descriptor with only one of its two
// addresses set.
var ErrUnpairedBusAddress = errors.New("surface and marker bus addresses must be set together")

// BusAddressAMD mirrors cl_bus_address_amd: the bus addresses of a surface
// and of its marker, used for peer-to-peer access.
type BusAddressAMD struct {
	SurfaceBusAddress uint64 `json:"surfaceBusAddress" yaml:"surface_bus_address"`
	MarkerBusAddress  uint64 `json:"markerBusAddress" yaml:"marker_bus_address"`
}

// IsZero reports whether neither address is set.
func (a BusAddressAMD) IsZero() bool {
	return a.SurfaceBusAddress == 0 && a.MarkerBusAddress == 0
}

// Validate checks that the surface and marker addresses are either both set
// or both zero.
func (a BusAddressAMD) Validate() error {
	if (a.SurfaceBusAddress == 0) != (a.MarkerBusAddress == 0) {
		return fmt.Errorf("%w: surface=%#x marker=%#x", ErrUnpairedBusAddress, a.SurfaceBusAddress, a.MarkerBusAddress)
	}
	return nil
}

// MarshalBinary encodes the descriptor in host byte order.
func (a BusAddressAMD) MarshalBinary() ([]byte, error) {
	b := make([]byte, BusAddressSize)
	binary.NativeEndian.PutUint64(b[0:], a.SurfaceBusAddress)
	binary.NativeEndian.PutUint64(b[8:], a.MarkerBusAddress)
	return b, nil
}

// UnmarshalBinary decodes exactly BusAddressSize bytes.
func (a *BusAddressAMD) UnmarshalBinary(data []byte) error {
	if len(data) != BusAddressSize {
		return &SizeError{Type: "cl_bus_address_amd", Want: BusAddressSize, Got: len(data)}
	}
	a.SurfaceBusAddress = binary.NativeEndian.Uint64(data[0:])
	a.MarkerBusAddress = binary.NativeEndian.Uint64(data[8:])
	return nil
}
