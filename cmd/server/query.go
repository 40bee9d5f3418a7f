package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"harmony-graphql/internal/config"
	"harmony-graphql/internal/executable"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/serverapp"
)

type queryOptions struct {
	variables string
	operation string
	raw       bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "query [document]",
		Short: "Run one GraphQL operation against the configured adapters",
		Long: `Run one GraphQL operation against the configured adapters without
starting the HTTP server. The document is read from stdin when no argument
is given.

Examples:
  harmony-graphql query '{ listCount }'
  harmony-graphql query -v '{"title":"a"}' 'mutation($title: String!) { listCreate(record: {title: $title}) { _id } }'
  cat op.graphql | harmony-graphql query`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			document := ""
			if len(args) == 1 {
				document = args[0]
			} else {
				var err error
				if document, err = readStdin(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if strings.TrimSpace(document) == "" {
				return fmt.Errorf("no query provided (pass as argument or pipe to stdin)")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// A one-shot run exports nothing and serves nothing.
			cfg.Observability.MetricsEnabled = false
			cfg.Observability.TracingEnabled = false
			cfg.Models.Watch = false
			cfg.Server.TLSMode = "off"

			req := executable.Request{Query: document, OperationName: opts.operation}
			if opts.variables != "" {
				if err := json.Unmarshal([]byte(opts.variables), &req.Variables); err != nil {
					return fmt.Errorf("invalid variables JSON: %w", err)
				}
			}
			return runQuery(cmd.Context(), cfg, req, cmd.OutOrStdout(), opts.raw)
		},
	}
	cmd.Flags().StringVarP(&opts.variables, "variables", "v", "", "Operation variables as a JSON object")
	cmd.Flags().StringVarP(&opts.operation, "operation", "o", "", "Operation name for multi-operation documents")
	cmd.Flags().BoolVar(&opts.raw, "json", false, "Print compact JSON")
	return cmd
}

func runQuery(ctx context.Context, cfg *config.Config, req executable.Request, out io.Writer, raw bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.NewLogger(logging.Config{
		Level:  "warn",
		Format: "text",
		Output: os.Stderr,
	})
	app, err := serverapp.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := app.Init(ctx); err != nil {
		return err
	}
	result, doErr := app.Do(ctx, req)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if doErr != nil {
		return doErr
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if !raw {
		data = pretty.Pretty(data)
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			data = pretty.Color(data, nil)
		}
	} else {
		data = append(data, '\n')
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("operation returned %d error(s)", len(result.Errors))
	}
	return nil
}

// readStdin returns piped input, or nothing when stdin is a terminal.
func readStdin(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("checking stdin: %w", err)
		}
		if stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
