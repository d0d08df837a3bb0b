package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/cwbudde/clext/internal/gpu"
	"github.com/cwbudde/clext/internal/pci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func testPlatforms() []gpu.PlatformInfo {
	topo := clext.NewPCIeTopology(0x03, 0x00, 0x00).Report()
	me := clext.CL_ME_VERSION_ADVANCED_VER_2_INTEL
	return []gpu.PlatformInfo{
		{
			Name: "AMD Accelerated Parallel Processing",
			Devices: []gpu.DeviceInfo{
				{Name: "gfx1030", Type: gpu.DeviceTypeGPU, Topology: &topo, BoardName: "AMD Radeon RX 6800 XT"},
			},
		},
		{
			Name: "Intel(R) OpenCL Graphics",
			Devices: []gpu.DeviceInfo{
				{Name: "Intel(R) UHD Graphics 630", Type: gpu.DeviceTypeGPU, MEVersion: &me},
			},
		},
	}
}

func TestBuildDeviceReports(t *testing.T) {
	var looked []clext.PCIeTopology
	lookup := func(p clext.PCIeTopology) (pci.Device, error) {
		looked = append(looked, p)
		return pci.Device{Address: pci.FromTopology(p), Vendor: 0x1002, DeviceID: 0x73bf}, nil
	}

	reports := buildDeviceReports(testPlatforms(), lookup)
	require.Len(t, reports, 2)

	assert.Equal(t, 0, reports[0].Index)
	require.NotNil(t, reports[0].PCI)
	assert.Equal(t, uint32(0x1002), reports[0].PCI.Vendor)
	assert.Nil(t, reports[1].PCI)
	assert.Equal(t, 1, reports[1].Index)
	assert.Equal(t, "Intel(R) OpenCL Graphics", reports[1].Platform)

	// Only devices with a PCIe topology are looked up.
	assert.Len(t, looked, 1)
}

func TestBuildDeviceReportsLookupFailure(t *testing.T) {
	lookup := func(clext.PCIeTopology) (pci.Device, error) {
		return pci.Device{}, pci.ErrNotFound
	}

	reports := buildDeviceReports(testPlatforms(), lookup)
	require.Len(t, reports, 2)
	assert.Nil(t, reports[0].PCI)
}

func TestWriteDeviceReportsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDeviceReports(&buf, "table", buildDeviceReports(testPlatforms(), nil)))

	out := buf.String()
	assert.Contains(t, out, "03:00.0")
	assert.Contains(t, out, "AMD Radeon RX 6800 XT")
	assert.Contains(t, out, "Intel(R) UHD Graphics 630")

	buf.Reset()
	require.NoError(t, writeDeviceReports(&buf, "table", nil))
	assert.Contains(t, buf.String(), "No OpenCL devices found")
}

func TestWriteDeviceReportsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDeviceReports(&buf, "json", buildDeviceReports(testPlatforms(), nil)))

	var decoded []deviceReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	require.NotNil(t, decoded[0].Device.Topology)

	p, ok := decoded[0].Device.PCIe()
	require.True(t, ok)
	assert.Equal(t, "03:00.0", p.String())
}

func TestWriteDeviceReportsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDeviceReports(&buf, "yaml", buildDeviceReports(testPlatforms(), nil)))

	var decoded []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Contains(t, buf.String(), "board_name: AMD Radeon RX 6800 XT")
	assert.Contains(t, buf.String(), "me_version: 2")
}

func TestWriteDeviceReportsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeDeviceReports(&buf, "xml", nil))
}

func TestWriteDecoded(t *testing.T) {
	decoded, err := clext.DecodeHex(clext.KindBusAddress, "00100000000000000020000000000000")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeDecoded(&buf, "yaml", decoded))
	assert.Contains(t, buf.String(), "kind: busaddr")
	assert.Contains(t, buf.String(), "size: 16")

	buf.Reset()
	require.NoError(t, writeDecoded(&buf, "JSON", decoded))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	assert.Error(t, writeDecoded(&buf, "toml", decoded))
}

func TestWriteLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeLayout(&buf))

	out := buf.String()
	assert.Contains(t, out, "pcie.function")
	assert.Contains(t, out, "cl_motion_estimation_desc_intel")

	// One header, one rule and one line per field.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, len(layoutFields)+2)
}

func TestLayoutFieldsStayInsideDescriptor(t *testing.T) {
	for _, f := range layoutFields {
		kind, err := clext.ParseKind(f.Type)
		require.NoError(t, err)
		assert.LessOrEqual(t, f.Offset+f.Size, kind.Size(), "%s.%s", f.Type, f.Field)
	}
}
