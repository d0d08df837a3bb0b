// Package pci resolves OpenCL device topology locations to PCI devices
// listed in sysfs.
package pci

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/prometheus/procfs/sysfs"
)

// ErrNotFound is returned when no sysfs PCI device matches an address.
var ErrNotFound = errors.New("pci device not found")

// Address is a full PCI location.
type Address struct {
	Domain   uint `json:"domain" yaml:"domain"`
	Bus      uint `json:"bus" yaml:"bus"`
	Slot     uint `json:"slot" yaml:"slot"`
	Function uint `json:"function" yaml:"function"`
}

func (p Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%1x", p.Domain, p.Bus, p.Slot, p.Function)
}

// FromTopology converts an AMD topology location. The descriptor carries
// no domain, so domain 0 is assumed.
func FromTopology(t clext.PCIeTopology) Address {
	return Address{
		Bus:      uint(t.Bus),
		Slot:     uint(t.Device),
		Function: uint(t.Function),
	}
}

// Device describes a PCI function found in sysfs.
type Device struct {
	Address  Address `json:"address" yaml:"address"`
	Class    uint32  `json:"class" yaml:"class"`
	Vendor   uint32  `json:"vendor" yaml:"vendor"`
	DeviceID uint32  `json:"deviceId" yaml:"device_id"`
}

// Resolver looks up PCI devices in sysfs.
type Resolver struct {
	fs sysfs.FS
}

// NewResolver opens sysfs at its default mount point.
func NewResolver() (*Resolver, error) {
	fs, err := sysfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}
	return &Resolver{fs: fs}, nil
}

// NewResolverWithMount opens sysfs at mountPoint.
func NewResolverWithMount(mountPoint string) (*Resolver, error) {
	fs, err := sysfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}
	return &Resolver{fs: fs}, nil
}

// Devices lists every PCI function in sysfs.
func (r *Resolver) Devices() ([]Device, error) {
	devices, err := r.fs.PciDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to read pci devices: %w", err)
	}

	out := make([]Device, 0, len(devices))
	for _, device := range devices {
		out = append(out, Device{
			Address: Address{
				Domain:   uint(device.Location.Segment),
				Bus:      uint(device.Location.Bus),
				Slot:     uint(device.Location.Device),
				Function: uint(device.Location.Function),
			},
			Class:    device.Class,
			Vendor:   device.Vendor,
			DeviceID: device.Device,
		})
	}
	return out, nil
}

// Resolve returns the device at addr.
func (r *Resolver) Resolve(addr Address) (Device, error) {
	devices, err := r.Devices()
	if err != nil {
		return Device{}, err
	}
	for _, device := range devices {
		if device.Address == addr {
			slog.Debug("Resolved pci device", "address", addr.String(), "vendor", device.Vendor)
			return device, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrNotFound, addr)
}

// ResolveTopology resolves an AMD topology location, assuming domain 0.
func (r *Resolver) ResolveTopology(t clext.PCIeTopology) (Device, error) {
	return r.Resolve(FromTopology(t))
}
