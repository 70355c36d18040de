package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datalith/dq-check-workflow/internal/cli/runner"
)

var (
	dryRun      bool
	payloadFile string
	database    string
	table       string
	sampleSize  int
	enableAI    bool

	runCmd = &cobra.Command{
		Use:   "run [config file]",
		Short: "Run a data quality check from configuration",
		Long:  "Execute one data quality check invocation using the specified configuration file",
		Args:  cobra.ExactArgs(1),
		Example: `  dqctl run checker.yaml --database sales_db --table orders
  dqctl run config/production.yaml --payload request.json
  dqctl run --dry-run checker.yaml`,
		RunE: runCheck,
	}
)

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate configuration without running any check")
	runCmd.Flags().StringVar(&payloadFile, "payload", "", "JSON file with the invocation payload")
	runCmd.Flags().StringVar(&database, "database", "", "Database to check (overrides payload and defaults)")
	runCmd.Flags().StringVar(&table, "table", "", "Table to check (overrides payload and defaults)")
	runCmd.Flags().IntVar(&sampleSize, "sample-size", 0, "Number of rows to sample (0 = configured default)")
	runCmd.Flags().BoolVar(&enableAI, "ai", false, "Enable AI analysis for this invocation")
	rootCmd.AddCommand(runCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	configFile := args[0]

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configFile)
	}

	cfg, err := runner.LoadConfig(configFile)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println(color.YellowString("Validating checker configuration from %s", configFile))
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		fmt.Println(color.GreenString("Configuration is valid"))
		return nil
	}

	payload, err := buildPayload(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	r, err := runner.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize checker: %w", err)
	}
	defer r.Close()

	resp := r.Invoke(ctx, payload)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("error rendering response: %w", err)
	}
	fmt.Println(string(out))

	if resp.StatusCode != 200 {
		fmt.Println(color.RedString("Check failed: %s", resp.Body.Message))
		os.Exit(1)
	}
	fmt.Println(color.GreenString("Check finished with status %s", resp.Body.Status))
	return nil
}

// buildPayload merges the optional payload file with explicit flags; flags
// win over file contents.
func buildPayload(cmd *cobra.Command) (map[string]interface{}, error) {
	payload := map[string]interface{}{}

	if payloadFile != "" {
		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("error reading payload file %s: %w", payloadFile, err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("error parsing payload file: %w", err)
		}
	}

	if database != "" {
		payload["database"] = database
	}
	if table != "" {
		payload["table"] = table
	}
	if cmd.Flags().Changed("sample-size") {
		payload["sample_size"] = sampleSize
	}
	if cmd.Flags().Changed("ai") {
		payload["enable_ai_analysis"] = enableAI
	}

	return payload, nil
}
