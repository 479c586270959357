package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	daemonAddr   string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scraperd",
	Short: "Liveness supervisor for market-data scraper workers",
	Long: `scraperd keeps a fixed fleet of long-running scraper processes alive.
It launches each worker with output redirected to a per-worker log sink,
polls the sinks for growth and failure markers, and restarts workers that
stall, crash, or log an error trace.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/scraperd/scraperd.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "", "daemon API address (default from SCRAPERD_ADDR or http://localhost:9631)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initEnv resolves the daemon address from flags and environment
func initEnv() {
	viper.SetEnvPrefix("SCRAPERD")
	viper.AutomaticEnv()
	viper.BindEnv("addr", "SCRAPERD_ADDR")

	if daemonAddr == "" {
		daemonAddr = viper.GetString("addr")
	}
	if daemonAddr == "" {
		daemonAddr = "http://localhost:9631"
	}
}

// GetDaemonAddr returns the daemon API address with trailing slashes removed
func GetDaemonAddr() string {
	return strings.TrimRight(daemonAddr, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
