package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cwbudde/clext/internal/gpu"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	logLevel    string
	libraryPath string
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clext",
	Short: "Inspect OpenCL vendor extension descriptors",
	Long: `clext enumerates OpenCL platforms and devices, reports the AMD device
topology, bus-addressable memory and Intel motion estimation extensions, and
decodes raw descriptor bytes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		bindCommandToViper(cmd)

		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// Logs go to stderr so stdout stays parseable for json/yaml output.
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		gpu.LibraryPath = libraryPath
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&libraryPath, "library", "", "Path to the OpenCL ICD loader (default: platform search path)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("CLEXT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath("$HOME/.config/clext/")

	_ = viper.ReadInConfig()
}

// bindCommandToViper lets config file and CLEXT_* environment values fill
// flags the user did not set on the command line.
func bindCommandToViper(cmd *cobra.Command) {
	bindFlagsToViper(cmd.InheritedFlags())
	bindFlagsToViper(cmd.Flags())
}

func bindFlagsToViper(fs *pflag.FlagSet) {
	fs.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
		_ = viper.BindEnv(flag.Name)

		if !flag.Changed && viper.IsSet(flag.Name) {
			val := viper.Get(flag.Name)
			_ = fs.Set(flag.Name, fmt.Sprintf("%v", val))
		}
	})
}
