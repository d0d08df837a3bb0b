package gpu

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"
	"unsafe"

	"github.com/cwbudde/clext/internal/clext"
)

type fakeDevice struct {
	params map[uint32][]byte
}

type fakePlatform struct {
	params  map[uint32][]byte
	devices []uintptr
}

// fakeCL serves clGet*Info queries from in-memory tables. Handles are
// small integers, never dereferenced.
type fakeCL struct {
	platforms     map[uintptr]fakePlatform
	platformOrder []uintptr
	devices       map[uintptr]fakeDevice
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, v)
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, v)
	return b
}

func copyParam(data []byte, ok bool, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32 {
	if !ok {
		return -30 // CL_INVALID_VALUE
	}
	if sizeRet != nil {
		*sizeRet = uintptr(len(data))
	}
	if value != nil {
		if size < uintptr(len(data)) {
			return -30
		}
		copy(unsafe.Slice((*byte)(value), size), data)
	}
	return clSuccess
}

func (f *fakeCL) api() *clAPI {
	return &clAPI{
		GetPlatformIDs: func(numEntries uint32, platforms *uintptr, numPlatforms *uint32) int32 {
			if numPlatforms != nil {
				*numPlatforms = uint32(len(f.platformOrder))
			}
			if platforms != nil {
				copy(unsafe.Slice(platforms, numEntries), f.platformOrder)
			}
			return clSuccess
		},
		GetPlatformInfo: func(platform uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32 {
			data, ok := f.platforms[platform].params[param]
			return copyParam(data, ok, size, value, sizeRet)
		},
		GetDeviceIDs: func(platform uintptr, deviceType uint64, numEntries uint32, devices *uintptr, numDevices *uint32) int32 {
			ids := f.platforms[platform].devices
			if len(ids) == 0 {
				return clDeviceNotFound
			}
			if numDevices != nil {
				*numDevices = uint32(len(ids))
			}
			if devices != nil {
				copy(unsafe.Slice(devices, numEntries), ids)
			}
			return clSuccess
		},
		GetDeviceInfo: func(device uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32 {
			data, ok := f.devices[device].params[param]
			return copyParam(data, ok, size, value, sizeRet)
		},
	}
}

func newFakeCL() *fakeCL {
	topo, _ := clext.NewPCIeTopology(0x03, 0x00, 0x00).MarshalBinary()

	return &fakeCL{
		platformOrder: []uintptr{1, 2},
		platforms: map[uintptr]fakePlatform{
			1: {
				params: map[uint32][]byte{
					clPlatformName:       cstr("AMD Accelerated Parallel Processing"),
					clPlatformVendor:     cstr("Advanced Micro Devices, Inc."),
					clPlatformVersion:    cstr("OpenCL 2.1 AMD-APP (3380.4)"),
					clPlatformExtensions: cstr("cl_khr_icd cl_amd_event_callback"),
				},
				devices: []uintptr{10, 11},
			},
			2: {
				params: map[uint32][]byte{
					clPlatformName:       cstr("Empty"),
					clPlatformVendor:     cstr("Nobody"),
					clPlatformVersion:    cstr("OpenCL 1.2"),
					clPlatformExtensions: cstr(""),
				},
			},
		},
		devices: map[uintptr]fakeDevice{
			10: {params: map[uint32][]byte{
				clDeviceName:                   cstr("gfx1030"),
				clDeviceVendor:                 cstr("Advanced Micro Devices, Inc."),
				clDeviceVersion:                cstr("OpenCL 2.0 AMD-APP (3380.4)"),
				clDeviceExtensions:             cstr("cl_khr_fp64 cl_amd_device_attribute_query cl_amd_bus_addressable_memory"),
				clDeviceType:                   u64(clDeviceTypeGPU),
				clDeviceMaxComputeUnits:        u32(40),
				clext.CL_DEVICE_TOPOLOGY_AMD:   topo,
				clext.CL_DEVICE_BOARD_NAME_AMD: cstr("AMD Radeon RX 6800 XT"),
			}},
			// Advertises motion estimation but the query is missing.
			11: {params: map[uint32][]byte{
				clDeviceName:            cstr("cpu"),
				clDeviceVendor:          cstr("AuthenticAMD"),
				clDeviceVersion:         cstr("OpenCL 1.2"),
				clDeviceExtensions:      cstr("cl_intel_motion_estimation"),
				clDeviceType:            u64(clDeviceTypeCPU | clDeviceTypeDefault),
				clDeviceMaxComputeUnits: u32(16),
			}},
		},
	}
}

func TestEnumeratePlatforms(t *testing.T) {
	platforms, err := enumeratePlatforms(newFakeCL().api())
	if err != nil {
		t.Fatalf("enumeratePlatforms failed: %v", err)
	}
	if len(platforms) != 2 {
		t.Fatalf("Expected 2 platforms, got %d", len(platforms))
	}

	amd := platforms[0]
	if amd.CLVersion != "2.1.0" {
		t.Errorf("Expected CL version 2.1.0, got %q", amd.CLVersion)
	}
	for _, want := range []string{"cl_amd_event_callback", "cl_khr_icd", "OpenCL10", "OpenCL12", "OpenCL21"} {
		if !slices.Contains(amd.Extensions, want) {
			t.Errorf("Platform extensions %v missing %q", amd.Extensions, want)
		}
	}
	if slices.Contains(amd.Extensions, "OpenCL22") {
		t.Errorf("Platform extensions %v exceed the reported version", amd.Extensions)
	}
	if len(amd.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(amd.Devices))
	}

	gpu := amd.Devices[0]
	if gpu.Type != DeviceTypeGPU || gpu.MaxComputeUnits != 40 {
		t.Errorf("Unexpected device: %+v", gpu)
	}
	if gpu.BoardName != "AMD Radeon RX 6800 XT" {
		t.Errorf("Unexpected board name %q", gpu.BoardName)
	}
	if !gpu.Capabilities.Topology || !gpu.Capabilities.BusAddressableMemory {
		t.Errorf("Unexpected capabilities: %+v", gpu.Capabilities)
	}
	pcie, ok := gpu.PCIe()
	if !ok {
		t.Fatal("Expected PCIe topology")
	}
	if pcie.String() != "03:00.0" {
		t.Errorf("Expected 03:00.0, got %s", pcie)
	}

	cpu := amd.Devices[1]
	if cpu.Type != DeviceTypeCPU {
		t.Errorf("Expected CPU, got %s", cpu.Type)
	}
	if !cpu.Capabilities.MotionEstimation {
		t.Error("Expected motion estimation capability")
	}
	if cpu.MEVersion != nil {
		t.Error("ME version should be unset when the query fails")
	}
	if cpu.Topology != nil {
		t.Error("Topology should be unset without the extension")
	}

	empty := platforms[1]
	if len(empty.Devices) != 0 {
		t.Errorf("Expected no devices, got %d", len(empty.Devices))
	}
}

func TestEnumerateReportsMEVersion(t *testing.T) {
	fake := newFakeCL()
	fake.devices[11].params[clext.CL_DEVICE_ME_VERSION_INTEL] = u32(clext.CL_ME_VERSION_ADVANCED_VER_2_INTEL)

	platforms, err := enumeratePlatforms(fake.api())
	if err != nil {
		t.Fatalf("enumeratePlatforms failed: %v", err)
	}

	cpu := platforms[0].Devices[1]
	if cpu.MEVersion == nil || *cpu.MEVersion != clext.CL_ME_VERSION_ADVANCED_VER_2_INTEL {
		t.Errorf("Unexpected ME version: %v", cpu.MEVersion)
	}
}

func TestEnumerateAddsVersionPseudoExtensions(t *testing.T) {
	fake := newFakeCL()
	fake.devices[11].params[clDeviceVersion] = cstr("OpenCL 1.2 (Build 5)")
	fake.devices[11].params[clDeviceExtensions] = cstr("cl_intel_motion_estimation cl_khr_gl_sharing")

	platforms, err := enumeratePlatforms(fake.api())
	if err != nil {
		t.Fatalf("enumeratePlatforms failed: %v", err)
	}

	ext := platforms[0].Devices[1].Extensions
	for _, want := range []string{"OpenCL10", "OpenCL11", "OpenCL12", "OpenCL10GL", "OpenCL12GL", "cl_khr_gl_sharing"} {
		if !slices.Contains(ext, want) {
			t.Errorf("Device extensions %v missing %q", ext, want)
		}
	}
	for _, unwanted := range []string{"OpenCL11GL", "OpenCL20"} {
		if slices.Contains(ext, unwanted) {
			t.Errorf("Device extensions %v should not contain %q", ext, unwanted)
		}
	}

	// No GL sharing, no GL entries.
	if slices.Contains(platforms[0].Devices[0].Extensions, "OpenCL10GL") {
		t.Errorf("Unexpected GL entry in %v", platforms[0].Devices[0].Extensions)
	}
}

func TestEnumerateMalformedTopologyIsSkipped(t *testing.T) {
	fake := newFakeCL()
	fake.devices[10].params[clext.CL_DEVICE_TOPOLOGY_AMD] = []byte{1, 2, 3}

	platforms, err := enumeratePlatforms(fake.api())
	if err != nil {
		t.Fatalf("enumeratePlatforms failed: %v", err)
	}
	if platforms[0].Devices[0].Topology != nil {
		t.Error("Expected malformed topology to be dropped")
	}
}

func TestEnumerateMissingNameFails(t *testing.T) {
	fake := newFakeCL()
	delete(fake.devices[10].params, clDeviceName)

	_, err := enumeratePlatforms(fake.api())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if StatusName(statusErr.Status) != "CL_INVALID_VALUE" {
		t.Errorf("Unexpected status %d", statusErr.Status)
	}
}

func TestSelectDevicePrefersGPU(t *testing.T) {
	platforms := []PlatformInfo{
		{Name: "cpu-only", Devices: []DeviceInfo{{Name: "cpu", Type: DeviceTypeCPU}}},
		{Name: "mixed", Devices: []DeviceInfo{{Name: "acc", Type: DeviceTypeAccelerator}, {Name: "gpu", Type: DeviceTypeGPU}}},
	}

	platform, device, err := selectDevice(platforms)
	if err != nil {
		t.Fatalf("selectDevice failed: %v", err)
	}
	if platform.Name != "mixed" || device.Name != "gpu" {
		t.Errorf("Expected mixed/gpu, got %s/%s", platform.Name, device.Name)
	}

	_, device, _ = selectDevice(platforms[:1])
	if device.Name != "cpu" {
		t.Errorf("Expected cpu fallback, got %s", device.Name)
	}

	_, device, _ = selectDevice([]PlatformInfo{{Devices: []DeviceInfo{{Name: "acc", Type: DeviceTypeAccelerator}}}})
	if device.Name != "acc" {
		t.Errorf("Expected first-available fallback, got %s", device.Name)
	}

	_, _, err = selectDevice(nil)
	if !errors.Is(err, ErrNoDevices) {
		t.Errorf("Expected ErrNoDevices, got %v", err)
	}
}

func TestMapDeviceType(t *testing.T) {
	tests := []struct {
		in   uint64
		want DeviceType
	}{
		{clDeviceTypeGPU, DeviceTypeGPU},
		{clDeviceTypeCPU | clDeviceTypeDefault, DeviceTypeCPU},
		{clDeviceTypeAccelerator, DeviceTypeAccelerator},
		{clDeviceTypeDefault, DeviceTypeDefault},
		{1 << 4, DeviceTypeUnknown},
	}

	for _, tt := range tests {
		if got := mapDeviceType(tt.in); got != tt.want {
			t.Errorf("mapDeviceType(%#x) = %s, expected %s", tt.in, got, tt.want)
		}
	}
}

func TestStatusError(t *testing.T) {
	err := statusError("clGetDeviceIDs(count)", -33)
	if err.Error() != "clGetDeviceIDs(count): CL_INVALID_DEVICE (-33)" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if StatusName(-999) != "CL_UNKNOWN_ERROR" {
		t.Error("Expected unknown status name")
	}
}

func TestOpenWithReleasesLibraryOnFailure(t *testing.T) {
	fake := newFakeCL()
	delete(fake.devices[10].params, clDeviceName)

	unloads := 0
	unload := func() error {
		unloads++
		return errors.New("dlclose failed")
	}

	rt, err := openWith(fake.api(), unload)
	if err == nil {
		t.Fatal("Expected enumeration error")
	}
	if rt != nil {
		t.Error("Expected nil runtime on failure")
	}
	if unloads != 1 {
		t.Errorf("Expected library to be unloaded once, got %d", unloads)
	}
}

func TestOpenWithPlatformsAndClose(t *testing.T) {
	unloads := 0
	rt, err := openWith(newFakeCL().api(), func() error {
		unloads++
		return nil
	})
	if err != nil {
		t.Fatalf("openWith failed: %v", err)
	}

	platforms := rt.Platforms()
	if len(platforms) != 2 {
		t.Fatalf("Expected 2 platforms, got %d", len(platforms))
	}

	// Callers get a copy.
	platforms[0].Name = "changed"
	if rt.Platforms()[0].Name == "changed" {
		t.Error("Platforms should not expose internal state")
	}

	_, device, err := rt.SelectDevice()
	if err != nil || device.Name != "gfx1030" {
		t.Errorf("Unexpected selection %q: %v", device.Name, err)
	}

	rt.Close()
	rt.Close()
	if unloads != 1 {
		t.Errorf("Expected a single unload, got %d", unloads)
	}
}
