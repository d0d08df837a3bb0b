package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/cwbudde/clext/internal/clext"
)

// Parameter names from CL/cl.h used by the inspection queries.
const (
	clPlatformVersion    uint32 = 0x0901
	clPlatformName       uint32 = 0x0902
	clPlatformVendor     uint32 = 0x0903
	clPlatformExtensions uint32 = 0x0904

	clDeviceType            uint32 = 0x1000
	clDeviceMaxComputeUnits uint32 = 0x1002
	clDeviceName            uint32 = 0x102B
	clDeviceVendor          uint32 = 0x102C
	clDeviceVersion         uint32 = 0x102F
	clDeviceExtensions      uint32 = 0x1030

	clDeviceTypeDefault     uint64 = 1 << 0
	clDeviceTypeCPU         uint64 = 1 << 1
	clDeviceTypeGPU         uint64 = 1 << 2
	clDeviceTypeAccelerator uint64 = 1 << 3
	clDeviceTypeAll         uint64 = 0xFFFFFFFF
)

// clAPI holds the four entry points the inspector needs. Handles are
// carried as uintptr; the backends convert them to cl_platform_id and
// cl_device_id.
type clAPI struct {
	GetPlatformIDs  func(numEntries uint32, platforms *uintptr, numPlatforms *uint32) int32
	GetPlatformInfo func(platform uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	GetDeviceIDs    func(platform uintptr, deviceType uint64, numEntries uint32, devices *uintptr, numDevices *uint32) int32
	GetDeviceInfo   func(device uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
}

// Runtime holds a loaded OpenCL library and the platforms it reported.
type Runtime struct {
	unload    func() error
	platforms []PlatformInfo
}

// Open loads the OpenCL library and enumerates all platforms and devices.
func Open() (*Runtime, error) {
	api, unload, err := loadAPI()
	if err != nil {
		return nil, err
	}
	return openWith(api, unload)
}

// openWith enumerates through api. The library is released again when
// enumeration fails.
func openWith(api *clAPI, unload func() error) (*Runtime, error) {
	platforms, err := enumeratePlatforms(api)
	if err != nil {
		if uerr := unload(); uerr != nil {
			slog.Warn("Failed to unload OpenCL library", "error", uerr)
		}
		return nil, err
	}

	return &Runtime{
		unload:    unload,
		platforms: platforms,
	}, nil
}

// Close releases the OpenCL library.
func (r *Runtime) Close() {
	if r == nil || r.unload == nil {
		return
	}
	if err := r.unload(); err != nil {
		slog.Warn("Failed to unload OpenCL library", "error", err)
	}
	r.unload = nil
}

// Platforms returns discovered platforms with their devices.
func (r *Runtime) Platforms() []PlatformInfo {
	out := make([]PlatformInfo, len(r.platforms))
	copy(out, r.platforms)
	return out
}

// SelectDevice picks a device (GPU preferred, then CPU, then the first
// available one).
func (r *Runtime) SelectDevice() (PlatformInfo, DeviceInfo, error) {
	return selectDevice(r.Platforms())
}

// EnumeratePlatforms opens the runtime, lists its platforms and closes it.
func EnumeratePlatforms() ([]PlatformInfo, error) {
	rt, err := Open()
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.Platforms(), nil
}

func selectDevice(platforms []PlatformInfo) (PlatformInfo, DeviceInfo, error) {
	for _, want := range []DeviceType{DeviceTypeGPU, DeviceTypeCPU} {
		for _, platform := range platforms {
			for _, device := range platform.Devices {
				if device.Type == want {
					return platform, device, nil
				}
			}
		}
	}

	// Fallback to first available
	for _, platform := range platforms {
		if len(platform.Devices) > 0 {
			return platform, platform.Devices[0], nil
		}
	}

	return PlatformInfo{}, DeviceInfo{}, ErrNoDevices
}

func enumeratePlatforms(api *clAPI) ([]PlatformInfo, error) {
	var count uint32
	status := api.GetPlatformIDs(0, nil, &count)
	if status != clSuccess {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	platformIDs := make([]uintptr, int(count))
	status = api.GetPlatformIDs(count, &platformIDs[0], nil)
	if status != clSuccess {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	platforms := make([]PlatformInfo, 0, int(count))
	for _, pid := range platformIDs {
		info, err := buildPlatformInfo(api, pid)
		if err != nil {
			return nil, err
		}

		devices, err := enumerateDevices(api, pid)
		if err != nil && !errors.Is(err, ErrNoDevices) {
			return nil, err
		}
		info.Devices = devices

		platforms = append(platforms, info)
	}

	return platforms, nil
}

func buildPlatformInfo(api *clAPI, id uintptr) (PlatformInfo, error) {
	name, err := getPlatformString(api, id, clPlatformName)
	if err != nil {
		return PlatformInfo{}, err
	}
	vendor, err := getPlatformString(api, id, clPlatformVendor)
	if err != nil {
		return PlatformInfo{}, err
	}
	version, err := getPlatformString(api, id, clPlatformVersion)
	if err != nil {
		return PlatformInfo{}, err
	}
	extensions, err := getPlatformString(api, id, clPlatformExtensions)
	if err != nil {
		return PlatformInfo{}, err
	}

	ext := clext.ParseExtensions(extensions)
	info := PlatformInfo{
		Name:    name,
		Vendor:  vendor,
		Version: version,
	}
	if v, err := clext.ParseVersion(version); err == nil {
		info.CLVersion = v.String()
		ext.AddVersions(v)
	} else {
		slog.Debug("Unparseable platform version", "platform", name, "error", err)
	}
	info.Extensions = ext.Sorted()
	return info, nil
}

func enumerateDevices(api *clAPI, platform uintptr) ([]DeviceInfo, error) {
	var count uint32
	status := api.GetDeviceIDs(platform, clDeviceTypeAll, 0, nil, &count)
	if status == clDeviceNotFound {
		return nil, ErrNoDevices
	}
	if status != clSuccess {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}
	if count == 0 {
		return nil, ErrNoDevices
	}

	deviceIDs := make([]uintptr, int(count))
	status = api.GetDeviceIDs(platform, clDeviceTypeAll, count, &deviceIDs[0], nil)
	if status != clSuccess {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	devices := make([]DeviceInfo, 0, int(count))
	for _, id := range deviceIDs {
		info, err := buildDeviceInfo(api, id)
		if err != nil {
			return nil, err
		}
		devices = append(devices, info)
	}

	return devices, nil
}

func buildDeviceInfo(api *clAPI, id uintptr) (DeviceInfo, error) {
	name, err := getDeviceString(api, id, clDeviceName)
	if err != nil {
		return DeviceInfo{}, err
	}
	vendor, err := getDeviceString(api, id, clDeviceVendor)
	if err != nil {
		return DeviceInfo{}, err
	}
	version, err := getDeviceString(api, id, clDeviceVersion)
	if err != nil {
		return DeviceInfo{}, err
	}
	extensions, err := getDeviceString(api, id, clDeviceExtensions)
	if err != nil {
		return DeviceInfo{}, err
	}

	rawType, err := getDeviceUint64(api, id, clDeviceType)
	if err != nil {
		return DeviceInfo{}, err
	}
	computeUnits, err := getDeviceUint32(api, id, clDeviceMaxComputeUnits)
	if err != nil {
		return DeviceInfo{}, err
	}

	ext := clext.ParseExtensions(extensions)
	if v, err := clext.ParseVersion(version); err == nil {
		ext.AddVersions(v)
	} else {
		slog.Debug("Unparseable device version", "device", name, "error", err)
	}

	info := DeviceInfo{
		Name:            name,
		Vendor:          vendor,
		Version:         version,
		Type:            mapDeviceType(rawType),
		MaxComputeUnits: computeUnits,
		Extensions:      ext.Sorted(),
		Capabilities:    ext.Capabilities(),
	}

	queryVendorDescriptors(api, id, ext, &info)
	return info, nil
}

// queryVendorDescriptors fills the optional fields for advertised
// extensions. A failing query is logged and skipped: drivers do report
// extensions whose entry points are missing.
func queryVendorDescriptors(api *clAPI, id uintptr, ext clext.ExtensionSet, info *DeviceInfo) {
	if ext.Has(clext.ExtAMDDeviceAttributeQuery) {
		var topo clext.DeviceTopologyAMD
		raw, err := getDeviceBytes(api, id, clext.CL_DEVICE_TOPOLOGY_AMD)
		if err == nil {
			err = topo.UnmarshalBinary(raw)
		}
		if err != nil {
			slog.Warn("Extension reported as available but topology query failed",
				"device", info.Name, "extension", clext.ExtAMDDeviceAttributeQuery, "error", err)
		} else {
			report := topo.Report()
			info.Topology = &report
		}

		board, err := getDeviceString(api, id, clext.CL_DEVICE_BOARD_NAME_AMD)
		if err != nil {
			slog.Debug("Board name query failed", "device", info.Name, "error", err)
		} else {
			info.BoardName = board
		}
	}

	if info.Capabilities.MotionEstimation {
		v, err := getDeviceUint32(api, id, clext.CL_DEVICE_ME_VERSION_INTEL)
		if err != nil {
			slog.Warn("Extension reported as available but ME version query failed",
				"device", info.Name, "extension", clext.ExtIntelMotionEstimation, "error", err)
		} else {
			info.MEVersion = &v
		}
	}
}

func getPlatformString(api *clAPI, id uintptr, param uint32) (string, error) {
	var size uintptr
	status := api.GetPlatformInfo(id, param, 0, nil, &size)
	if status != clSuccess {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = api.GetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != clSuccess {
		return "", statusError("clGetPlatformInfo(value)", status)
	}

	return trimNull(buf), nil
}

func getDeviceBytes(api *clAPI, id uintptr, param uint32) ([]byte, error) {
	var size uintptr
	status := api.GetDeviceInfo(id, param, 0, nil, &size)
	if status != clSuccess {
		return nil, statusError(fmt.Sprintf("clGetDeviceInfo(%#x size)", param), status)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, int(size))
	status = api.GetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != clSuccess {
		return nil, statusError(fmt.Sprintf("clGetDeviceInfo(%#x value)", param), status)
	}
	return buf, nil
}

func getDeviceString(api *clAPI, id uintptr, param uint32) (string, error) {
	buf, err := getDeviceBytes(api, id, param)
	if err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func getDeviceUint32(api *clAPI, id uintptr, param uint32) (uint32, error) {
	buf, err := getDeviceBytes(api, id, param)
	if err != nil {
		return 0, err
	}
	if len(buf) != 4 {
		return 0, fmt.Errorf("clGetDeviceInfo(%#x): want 4 bytes, got %d", param, len(buf))
	}
	return binary.NativeEndian.Uint32(buf), nil
}

func getDeviceUint64(api *clAPI, id uintptr, param uint32) (uint64, error) {
	buf, err := getDeviceBytes(api, id, param)
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf("clGetDeviceInfo(%#x): want 8 bytes, got %d", param, len(buf))
	}
	return binary.NativeEndian.Uint64(buf), nil
}

func trimNull(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	if buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func mapDeviceType(dt uint64) DeviceType {
	switch {
	case dt&clDeviceTypeGPU != 0:
		return DeviceTypeGPU
	case dt&clDeviceTypeCPU != 0:
		return DeviceTypeCPU
	case dt&clDeviceTypeAccelerator != 0:
		return DeviceTypeAccelerator
	case dt&clDeviceTypeDefault != 0:
		return DeviceTypeDefault
	default:
		return DeviceTypeUnknown
	}
}
