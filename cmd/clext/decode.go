package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var decodeOutput string

var decodeCmd = &cobra.Command{
	Use:   "decode <topology|busaddr|me> <hex>",
	Short: "Decode raw descriptor bytes",
	Long: `Decode a hex dump of cl_device_topology_amd, cl_bus_address_amd or
cl_motion_estimation_desc_intel in host byte order. Whitespace, colons and a
leading 0x are ignored. Use "-" to read the hex from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", "yaml", "Output format (json, yaml)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	kind, err := clext.ParseKind(args[0])
	if err != nil {
		return err
	}

	input := args[1]
	if input == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		input = string(b)
	}

	decoded, err := clext.DecodeHex(kind, input)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}

	return writeDecoded(os.Stdout, decodeOutput, decoded)
}

func writeDecoded(out io.Writer, format string, decoded *clext.Decoded) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(decoded)
	case "yaml", "":
		b, err := yaml.Marshal(decoded)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	}
	return fmt.Errorf("unknown output format %q (want json or yaml)", format)
}
