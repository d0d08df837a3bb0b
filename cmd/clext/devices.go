package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/cwbudde/clext/internal/gpu"
	"github.com/cwbudde/clext/internal/pci"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var (
	devicesOutput     string
	devicesResolvePCI bool
	devicesSelect     bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List OpenCL devices and their vendor descriptors",
	Long: `Enumerate every OpenCL platform and device and report the AMD topology,
board name and Intel motion estimation version where the device supports them.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesOutput, "output", "o", "table", "Output format (table, json, yaml)")
	devicesCmd.Flags().BoolVar(&devicesResolvePCI, "resolve-pci", false, "Look up PCIe locations in sysfs")
	devicesCmd.Flags().BoolVar(&devicesSelect, "select", false, "Only show the device that would be selected by default")
}

// deviceReport is one row of the devices output.
type deviceReport struct {
	Index    int            `json:"index" yaml:"index"`
	Platform string         `json:"platform" yaml:"platform"`
	Device   gpu.DeviceInfo `json:"device" yaml:"device"`
	PCI      *pci.Device    `json:"pci,omitempty" yaml:"pci,omitempty"`
}

// pciLookup resolves a PCIe topology to a sysfs device.
type pciLookup func(clext.PCIeTopology) (pci.Device, error)

func runDevices(cmd *cobra.Command, args []string) error {
	rt, err := gpu.Open()
	if err != nil {
		return fmt.Errorf("failed to open OpenCL runtime: %w", err)
	}
	defer rt.Close()

	platforms := rt.Platforms()
	if devicesSelect {
		platform, device, err := rt.SelectDevice()
		if err != nil {
			return err
		}
		platform.Devices = []gpu.DeviceInfo{device}
		platforms = []gpu.PlatformInfo{platform}
	}

	var lookup pciLookup
	if devicesResolvePCI {
		resolver, err := pci.NewResolver()
		if err != nil {
			return err
		}
		lookup = resolver.ResolveTopology
	}

	reports := buildDeviceReports(platforms, lookup)
	return writeDeviceReports(os.Stdout, devicesOutput, reports)
}

func buildDeviceReports(platforms []gpu.PlatformInfo, lookup pciLookup) []deviceReport {
	reports := []deviceReport{}
	for _, platform := range platforms {
		for _, device := range platform.Devices {
			report := deviceReport{
				Index:    len(reports),
				Platform: platform.Name,
				Device:   device,
			}
			if p, ok := device.PCIe(); ok && lookup != nil {
				resolved, err := lookup(p)
				if err != nil {
					slog.Warn("Failed to resolve PCIe location", "device", device.Name, "location", p.String(), "error", err)
				} else {
					report.PCI = &resolved
				}
			}
			reports = append(reports, report)
		}
	}
	return reports
}

func writeDeviceReports(out io.Writer, format string, reports []deviceReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		b, err := yaml.Marshal(reports)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}

	if len(reports) == 0 {
		fmt.Fprintln(out, "No OpenCL devices found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPLATFORM\tDEVICE\tTYPE\tPCIE\tBOARD\tME\tPCI ID")
	fmt.Fprintln(w, "-\t--------\t------\t----\t----\t-----\t--\t------")

	for _, r := range reports {
		pcie := "-"
		if p, ok := r.Device.PCIe(); ok {
			pcie = p.String()
		}

		board := r.Device.BoardName
		if board == "" {
			board = "-"
		}

		me := "-"
		if r.Device.MEVersion != nil {
			me = fmt.Sprintf("%d", *r.Device.MEVersion)
		}

		pciID := "-"
		if r.PCI != nil {
			pciID = fmt.Sprintf("%04x:%04x", r.PCI.Vendor, r.PCI.DeviceID)
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Index,
			r.Platform,
			r.Device.Name,
			r.Device.Type,
			pcie,
			board,
			me,
			pciID,
		)
	}

	return w.Flush()
}
