package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-verifier/internal/common"
)

var version = "dev"

type rootOptions struct {
	envFile string
	cfg     *common.Config
	logger  *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "verifier",
		Short:         "Property document verifier: OCR, field extraction and LLM risk assessment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.envFile != "" {
				// A missing .env is normal outside development.
				_ = godotenv.Load(opts.envFile)
			}
			opts.cfg = common.LoadConfig()
			if err := opts.cfg.Validate(); err != nil {
				return err
			}
			// stdout carries command output (and the MCP protocol), so logs go to stderr.
			opts.logger = common.NewLogger(opts.cfg.Log, os.Stderr)
			slog.SetDefault(opts.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newOCRCmd(opts),
		newWatchCmd(opts),
		newMCPCmd(opts),
		newDBHealthCmd(opts),
	)
	return root
}
