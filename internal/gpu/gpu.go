// Package gpu inspects OpenCL platforms and devices, including the vendor
// extension descriptors defined in package clext.
package gpu

import "errors"

// ErrNotBuilt indicates that no OpenCL library could be used by this binary.
var ErrNotBuilt = errors.New("opencl support unavailable: library not found or binary built without '-tags gpu'")

// LibraryPath overrides the OpenCL loader location for the dynamic backend.
// Empty means the platform default. Builds with '-tags gpu' ignore it.
var LibraryPath string
