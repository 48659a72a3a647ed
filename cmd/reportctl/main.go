package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fdg312/informes-hub/internal/logging"
)

var (
	// Global flags
	apiBase     string
	profilePath string
	logLevel    string
	plain       bool
	exportPath  string
	title       string
	timeout     time.Duration

	// generate flags
	supervisor string
	project    string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reportctl",
	Short: "Generate technical reports from the terminal",
	Long: `reportctl talks to the Informes API directly: it checks the backend,
validates a spreadsheet, submits it and renders the returned report.

Examples:
  reportctl check
  reportctl generate datos.xlsx --supervisor "Ana Pérez" --project "Vía 12"
  reportctl demo --export informe.json
  reportctl from-url https://example.org/datos.xlsx --plain`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New("local", logLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the report backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

var generateCmd = &cobra.Command{
	Use:   "generate FILE",
	Short: "Validate a spreadsheet and generate its report",
	Long: `Validates FILE (.xlsx, .xls or .csv, at most 10MB) locally and uploads it.
A rejected file is never sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Generate the demo report",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

var fromURLCmd = &cobra.Command{
	Use:   "from-url URL",
	Short: "Generate a report from a spreadsheet URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runFromURL,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiBase, "api", "", "report API base URL (default from profile, REPORT_API_BASE_URL or http://localhost:8000)")
	pf.StringVar(&profilePath, "profile", "", "YAML profile (default $XDG_CONFIG_HOME/reportctl/profile.yaml)")
	pf.StringVar(&logLevel, "log-level", "error", "log level")
	pf.BoolVar(&plain, "plain", false, "print plain output instead of the interactive view")
	pf.StringVar(&exportPath, "export", "", "write the report to PATH (.json, .pdf or .csv; a directory uses the title)")
	pf.StringVar(&title, "title", "", "export title")
	pf.DurationVar(&timeout, "timeout", 0, "request timeout (default from profile or 120s)")

	generateCmd.Flags().StringVar(&supervisor, "supervisor", "", "supervisor name")
	generateCmd.Flags().StringVar(&project, "project", "", "project name")

	rootCmd.AddCommand(checkCmd, generateCmd, demoCmd, fromURLCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	a := newApp(opts, logger)
	defer a.close()

	st := a.monitor.CheckNow(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), st.Label())
	if !st.Connected() {
		return fmt.Errorf("backend %s is not reachable", opts.APIBaseURL)
	}
	return nil
}
