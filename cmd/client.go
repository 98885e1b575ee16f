package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hyperdatalab/gateway/config"
	"github.com/hyperdatalab/gateway/internal/apiclient"
	"github.com/hyperdatalab/gateway/internal/executor"
	"github.com/hyperdatalab/gateway/pkg/logger"
)

var (
	colorSuccess = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorError   = color.New(color.FgRed, color.Bold).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
)

// errCallFailed makes the process exit non-zero after the failure was printed.
var errCallFailed = errors.New("call failed")

type clientFlags struct {
	baseURL    string
	maxRetries int
	healthPath string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.baseURL, "base-url", "", "Gateway or backend base URL (overrides client.base_url)")
	cmd.PersistentFlags().IntVar(&f.maxRetries, "max-retries", -1, "Retries for transient failures (overrides client.max_retries)")
	cmd.PersistentFlags().StringVar(&f.healthPath, "health-path", "", "Health route, /health when calling the backend directly (overrides client.health_path)")
}

func (f *clientFlags) newClient(configFile string, stderr io.Writer) (*apiclient.Client, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	execCfg := executor.Config{
		BaseURL:    cfg.Client.BaseURL,
		MaxRetries: cfg.Client.MaxRetries,
		Timeout:    cfg.ClientTimeout(),
		RetryDelay: cfg.ClientRetryDelay(),
	}
	if f.baseURL != "" {
		execCfg.BaseURL = f.baseURL
	}
	if f.maxRetries >= 0 {
		execCfg.MaxRetries = f.maxRetries
	}

	healthPath := cfg.Client.HealthPath
	if f.healthPath != "" {
		healthPath = f.healthPath
	}

	log := logger.NewWithWriter(stderr, cfg.Logging.Level, false, cfg.Server.Environment)
	return apiclient.New(executor.New(execCfg, log), apiclient.WithHealthPath(healthPath)), nil
}

func newHealthCmd(configFile *string) *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the backend health endpoint through the retrying client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.newClient(*configFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), client.Health(cmd.Context()))
		},
	}
	flags.register(cmd)

	return cmd
}

func newReportsCmd(configFile *string) *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List, fetch, or delete financial reports",
	}
	flags.register(cmd)

	var filter apiclient.ReportFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List reports matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.newClient(*configFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), client.ListReports(cmd.Context(), filter))
		},
	}
	list.Flags().StringVar(&filter.Symbol, "symbol", "", "Stock symbol")
	list.Flags().StringVar(&filter.Type, "type", "", "Report type, e.g. 10-K")
	list.Flags().IntVar(&filter.Year, "year", 0, "Fiscal year")
	list.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of reports")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "Number of reports to skip")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			client, err := flags.newClient(*configFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), client.GetReport(cmd.Context(), id))
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			client, err := flags.newClient(*configFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), client.DeleteReport(cmd.Context(), id))
		},
	}

	cmd.AddCommand(list, get, del)
	return cmd
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid report id %q: %w", raw, err)
	}
	return id, nil
}

// printResult writes the uniform JSON result to out and a colored status line
// to errOut. A failed call yields errCallFailed.
func printResult(out, errOut io.Writer, res executor.Result) error {
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(out, string(raw))

	if res.OK {
		fmt.Fprintf(errOut, "%s %s\n", colorSuccess("OK"), colorFaint(fmt.Sprintf("status %d", res.Status)))
		return nil
	}

	f := res.Failure
	detail := string(f.Kind)
	if f.Status != 0 {
		detail = fmt.Sprintf("%s, status %d", detail, f.Status)
	}
	if f.Retries > 0 {
		detail = fmt.Sprintf("%s, %d retries", detail, f.Retries)
	}
	fmt.Fprintf(errOut, "%s %s %s\n", colorError("FAILED"), f.Message, colorFaint("("+detail+")"))

	return errCallFailed
}

func printFailure(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", colorError("ERROR"), fmt.Sprintf(format, args...))
}
