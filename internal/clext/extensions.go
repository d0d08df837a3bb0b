package clext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Extension names that expose the descriptors in this package.
const (
	ExtAMDDeviceAttributeQuery       = "cl_amd_device_attribute_query"
	ExtAMDBusAddressableMemory       = "cl_amd_bus_addressable_memory"
	ExtIntelMotionEstimation         = "cl_intel_motion_estimation"
	ExtIntelAdvancedMotionEstimation = "cl_intel_advanced_motion_estimation"
	ExtKHRGLSharing                  = "cl_khr_gl_sharing"
	ExtAPPLEGLSharing                = "cl_APPLE_gl_sharing"
)

// coreVersions lists every OpenCL core release, oldest first.
var coreVersions = []string{"1.0", "1.1", "1.2", "2.0", "2.1", "2.2", "3.0"}

// glVersions are the core versions that get an OpenCLxyGL entry.
var glVersions = map[string]bool{"1.0": true, "1.2": true}

// ExtensionSet is the parsed form of a CL_PLATFORM_EXTENSIONS or
// CL_DEVICE_EXTENSIONS string.
type ExtensionSet map[string]struct{}

// ParseExtensions splits a space separated extension string.
func ParseExtensions(s string) ExtensionSet {
	set := make(ExtensionSet)
	for _, name := range strings.Fields(s) {
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether name is present.
func (s ExtensionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s ExtensionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddVersions adds an OpenCLxy entry for every core version up to and
// including v. With GL sharing available, OpenCL10GL and OpenCL12GL are
// added too, when v reaches them.
// Call it after the real extensions have been parsed.
func (s ExtensionSet) AddVersions(v *semver.Version) {
	gl := s.Has(ExtKHRGLSharing) || s.Has(ExtAPPLEGLSharing)
	for _, raw := range coreVersions {
		core := semver.MustParse(raw)
		if core.GreaterThan(v) {
			break
		}
		name := fmt.Sprintf("OpenCL%d%d", core.Major(), core.Minor())
		s[name] = struct{}{}
		if gl && glVersions[raw] {
			s[name+"GL"] = struct{}{}
		}
	}
}

// Capabilities reports which vendor descriptors a device can produce.
type Capabilities struct {
	Topology             bool `json:"topology" yaml:"topology"`
	BusAddressableMemory bool `json:"busAddressableMemory" yaml:"bus_addressable_memory"`
	MotionEstimation     bool `json:"motionEstimation" yaml:"motion_estimation"`
}

// Capabilities derives descriptor support from the extension set.
func (s ExtensionSet) Capabilities() Capabilities {
	return Capabilities{
		Topology:             s.Has(ExtAMDDeviceAttributeQuery),
		BusAddressableMemory: s.Has(ExtAMDBusAddressableMemory),
		MotionEstimation:     s.Has(ExtIntelMotionEstimation) || s.Has(ExtIntelAdvancedMotionEstimation),
	}
}

// ParseVersion parses a platform or device version string of the form
// "OpenCL <major>.<minor> <vendor-specific information>".
func ParseVersion(s string) (*semver.Version, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 || fields[0] != "OpenCL" {
		return nil, fmt.Errorf("malformed OpenCL version string %q", s)
	}
	v, err := semver.NewVersion(fields[1])
	if err != nil {
		return nil, fmt.Errorf("malformed OpenCL version %q: %w", fields[1], err)
	}
	return v, nil
}
