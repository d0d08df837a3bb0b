//go:build gpu

package gpu

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/cl.h>
#else
#include <CL/cl.h>
#endif
*/
import "C"

import "unsafe"

// loadAPI binds the entry points linked at build time.
func loadAPI() (*clAPI, func() error, error) {
	return &clAPI{
		GetPlatformIDs:  cgoGetPlatformIDs,
		GetPlatformInfo: cgoGetPlatformInfo,
		GetDeviceIDs:    cgoGetDeviceIDs,
		GetDeviceInfo:   cgoGetDeviceInfo,
	}, func() error { return nil }, nil
}

func cgoGetPlatformIDs(numEntries uint32, platforms *uintptr, numPlatforms *uint32) int32 {
	return int32(C.clGetPlatformIDs(
		C.cl_uint(numEntries),
		(*C.cl_platform_id)(unsafe.Pointer(platforms)),
		(*C.cl_uint)(unsafe.Pointer(numPlatforms)),
	))
}

func cgoGetPlatformInfo(platform uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32 {
	return int32(C.clGetPlatformInfo(
		C.cl_platform_id(unsafe.Pointer(platform)),
		C.cl_platform_info(param),
		C.size_t(size),
		value,
		(*C.size_t)(unsafe.Pointer(sizeRet)),
	))
}

func cgoGetDeviceIDs(platform uintptr, deviceType uint64, numEntries uint32, devices *uintptr, numDevices *uint32) int32 {
	return int32(C.clGetDeviceIDs(
		C.cl_platform_id(unsafe.Pointer(platform)),
		C.cl_device_type(deviceType),
		C.cl_uint(numEntries),
		(*C.cl_device_id)(unsafe.Pointer(devices)),
		(*C.cl_uint)(unsafe.Pointer(numDevices)),
	))
}

func cgoGetDeviceInfo(device uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32 {
	return int32(C.clGetDeviceInfo(
		C.cl_device_id(unsafe.Pointer(device)),
		C.cl_device_info(param),
		C.size_t(size),
		value,
		(*C.size_t)(unsafe.Pointer(sizeRet)),
	))
}
