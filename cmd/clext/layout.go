package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the byte layout of each descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeLayout(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(layoutCmd)
}

type layoutField struct {
	Type   string
	Field  string
	Offset int
	Size   int
}

var layoutFields = []layoutField{
	{"cl_device_topology_amd", "raw.type", clext.TopologyTypeOffset, 4},
	{"cl_device_topology_amd", "raw.data[5]", clext.TopologyDataOffset, 4 * clext.TopologyDataWords},
	{"cl_device_topology_amd", "pcie.type", clext.TopologyTypeOffset, 4},
	{"cl_device_topology_amd", "pcie.unused[17]", clext.PCIeUnusedOffset, clext.PCIeUnusedSize},
	{"cl_device_topology_amd", "pcie.bus", clext.PCIeBusOffset, 1},
	{"cl_device_topology_amd", "pcie.device", clext.PCIeDeviceOffset, 1},
	{"cl_device_topology_amd", "pcie.function", clext.PCIeFunctionOffset, 1},
	{"cl_bus_address_amd", "surface_bus_address", 0, 8},
	{"cl_bus_address_amd", "marker_bus_address", 8, 8},
	{"cl_motion_estimation_desc_intel", "mb_block_type", 0, 4},
	{"cl_motion_estimation_desc_intel", "subpixel_mode", 4, 4},
	{"cl_motion_estimation_desc_intel", "sad_adjust_mode", 8, 4},
	{"cl_motion_estimation_desc_intel", "search_path_type", 12, 4},
}

func writeLayout(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tSIZE\tFIELD\tOFFSET\tBYTES")
	fmt.Fprintln(w, "----\t----\t-----\t------\t-----")

	for _, f := range layoutFields {
		kind, err := clext.ParseKind(f.Type)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\n", f.Type, kind.Size(), f.Field, f.Offset, f.Size)
	}

	return w.Flush()
}
