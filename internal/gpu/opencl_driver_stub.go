//go:build !gpu && !linux && !darwin

package gpu

// loadAPI returns an error when no OpenCL backend is available.
func loadAPI() (*clAPI, func() error, error) {
	return nil, nil, ErrNotBuilt
}
