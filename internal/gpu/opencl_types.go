package gpu

import "github.com/cwbudde/clext/internal/clext"

// DeviceType describes the class of an OpenCL device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures metadata about an OpenCL device, including the vendor
// extension descriptors it reports.
type DeviceInfo struct {
	Name            string             `json:"name" yaml:"name"`
	Vendor          string             `json:"vendor" yaml:"vendor"`
	Version         string             `json:"version" yaml:"version"`
	Type            DeviceType         `json:"type" yaml:"type"`
	MaxComputeUnits uint32             `json:"maxComputeUnits" yaml:"max_compute_units"`
	Extensions      []string           `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Capabilities    clext.Capabilities `json:"capabilities" yaml:"capabilities"`

	// Set only when the device advertises the matching extension and the
	// query succeeded.
	BoardName string                `json:"boardName,omitempty" yaml:"board_name,omitempty"`
	Topology  *clext.TopologyReport `json:"topology,omitempty" yaml:"topology,omitempty"`
	MEVersion *uint32               `json:"meVersion,omitempty" yaml:"me_version,omitempty"`
}

// PCIe returns the device's PCI-Express location if its topology descriptor
// carries one.
func (d DeviceInfo) PCIe() (clext.PCIeTopology, bool) {
	if d.Topology == nil {
		return clext.PCIeTopology{}, false
	}
	return d.Topology.Descriptor().PCIe()
}

// PlatformInfo captures metadata about an OpenCL platform and its devices.
type PlatformInfo struct {
	Name       string       `json:"name" yaml:"name"`
	Vendor     string       `json:"vendor" yaml:"vendor"`
	Version    string       `json:"version" yaml:"version"`
	CLVersion  string       `json:"clVersion,omitempty" yaml:"cl_version,omitempty"`
	Extensions []string     `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Devices    []DeviceInfo `json:"devices" yaml:"devices"`
}
