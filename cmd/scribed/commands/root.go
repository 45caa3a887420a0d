package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/scribe/pkg/gateway"
	"github.com/haivivi/scribe/pkg/store"
)

var (
	verbose      bool
	configFile   string
	formatOutput string
)

var rootCmd = &cobra.Command{
	Use:   "scribed",
	Short: "Real-time speech transcription gateway",
	Long: `scribed is a speech-to-text gateway over the Volcano Engine SAUC API.

Commands:
  serve     Run the gateway server (streaming WebSocket + upload API)
  records   Inspect stored transcriptions (list, get, delete)
  version   Version information

Configuration is read from a YAML file (--config) with environment
overrides:
  SCRIBE_LISTEN, SCRIBE_DATA_DIR, SCRIBE_WS_IDLE_TIMEOUT_SEC
  VOLC_APP_KEY, VOLC_ACCESS_KEY, VOLC_RESOURCE_ID
  ARK_API_KEY, ARK_MODEL_ID

Examples:
  scribed serve --config scribed.yaml
  VOLC_APP_KEY=xxx VOLC_ACCESS_KEY=yyy scribed serve
  scribed records list --limit 20
  scribed records get 8b1c0f2a --format json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "table", "output format: table, json, yaml")
}

// loadConfig reads the config file named by --config plus environment.
func loadConfig() (*gateway.Config, error) {
	return gateway.Load(configFile)
}

// testStoreOverride is set during tests to share a store across commands.
var testStoreOverride *store.Store

// openStore opens the record database under the configured data dir. The
// returned func releases it.
func openStore() (*store.Store, func(), error) {
	if testStoreOverride != nil {
		return testStoreOverride, func() {}, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(store.Options{Dir: cfg.RecordsDir()})
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
