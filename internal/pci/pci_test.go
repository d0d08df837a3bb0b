//go:build linux

package pci

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakePCIDevice(t *testing.T, sysRoot, id string, vals map[string]string) {
	t.Helper()

	parent := "pci0000:00"
	devDir := filepath.Join(sysRoot, "devices", parent, id)
	require.NoError(t, os.MkdirAll(devDir, 0o755))

	for _, f := range []string{"class", "vendor", "device", "subsystem_vendor", "subsystem_device", "revision"} {
		val, ok := vals[f]
		require.True(t, ok, "missing required %s in vals", f)
		require.NoError(t, os.WriteFile(filepath.Join(devDir, f), []byte(val+"\n"), 0o644))
	}

	busDevicesDir := filepath.Join(sysRoot, "bus", "pci", "devices")
	require.NoError(t, os.MkdirAll(busDevicesDir, 0o755))

	linkPath := filepath.Join(busDevicesDir, id)
	target := filepath.Join("..", "..", "..", "devices", parent, id)
	_ = os.Remove(linkPath)
	require.NoError(t, os.Symlink(target, linkPath))
}

func fakeSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFakePCIDevice(t, root, "0000:03:00.0", map[string]string{
		"class":            "0x030000",
		"vendor":           "0x1002",
		"device":           "0x73bf",
		"subsystem_vendor": "0x1002",
		"subsystem_device": "0x0e3a",
		"revision":         "0xc1",
	})
	writeFakePCIDevice(t, root, "0000:00:02.0", map[string]string{
		"class":            "0x030000",
		"vendor":           "0x8086",
		"device":           "0x9bc5",
		"subsystem_vendor": "0x8086",
		"subsystem_device": "0x0001",
		"revision":         "0x5",
	})
	return root
}

func TestAddressString(t *testing.T) {
	addr := FromTopology(clext.PCIeTopology{Bus: 0xc1, Device: 0x1f, Function: 7})
	assert.Equal(t, "0000:c1:1f.7", addr.String())
}

func TestResolverDevices(t *testing.T) {
	r, err := NewResolverWithMount(fakeSysfs(t))
	require.NoError(t, err)

	devices, err := r.Devices()
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestResolveTopology(t *testing.T) {
	r, err := NewResolverWithMount(fakeSysfs(t))
	require.NoError(t, err)

	pcie, ok := clext.NewPCIeTopology(0x03, 0x00, 0x00).PCIe()
	require.True(t, ok)

	device, err := r.ResolveTopology(pcie)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1002), device.Vendor)
	assert.Equal(t, uint32(0x73bf), device.DeviceID)
	assert.Equal(t, uint32(0x030000), device.Class)
	assert.Equal(t, "0000:03:00.0", device.Address.String())
}

func TestResolveMissingDevice(t *testing.T) {
	r, err := NewResolverWithMount(fakeSysfs(t))
	require.NoError(t, err)

	_, err = r.Resolve(Address{Bus: 0x44})
	assert.True(t, errors.Is(err, ErrNotFound))
}
