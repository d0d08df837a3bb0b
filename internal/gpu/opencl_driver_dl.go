//go:build !gpu && (linux || darwin)

package gpu

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

func defaultLibraryPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/System/Library/Frameworks/OpenCL.framework/OpenCL"}
	default:
		return []string{"libOpenCL.so.1", "libOpenCL.so"}
	}
}

// loadAPI opens the OpenCL ICD loader at run time, so the binary does not
// need cgo or the OpenCL headers.
func loadAPI() (*clAPI, func() error, error) {
	paths := defaultLibraryPaths()
	if LibraryPath != "" {
		paths = []string{LibraryPath}
	}

	var handle uintptr
	var lastErr error
	for _, path := range paths {
		h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			handle = h
			break
		}
		lastErr = fmt.Errorf("dlopen %s failed: %w", path, err)
	}
	if handle == 0 {
		return nil, nil, fmt.Errorf("%w: %w", ErrNotBuilt, lastErr)
	}

	api := &clAPI{}
	purego.RegisterLibFunc(&api.GetPlatformIDs, handle, "clGetPlatformIDs")
	purego.RegisterLibFunc(&api.GetPlatformInfo, handle, "clGetPlatformInfo")
	purego.RegisterLibFunc(&api.GetDeviceIDs, handle, "clGetDeviceIDs")
	purego.RegisterLibFunc(&api.GetDeviceInfo, handle, "clGetDeviceInfo")

	unload := func() error {
		if err := purego.Dlclose(handle); err != nil {
			return fmt.Errorf("dlclose failed: %w", err)
		}
		return nil
	}
	return api, unload, nil
}
