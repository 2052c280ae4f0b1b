package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/async"
	"github.com/joseph-ayodele/property-verifier/internal/ingest"
	"github.com/joseph-ayodele/property-verifier/internal/mcp"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/server"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

const (
	healthRefresh   = 15 * time.Second
	watchDebounce   = 500 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and optionally the gRPC health server and inbox watcher)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger := opts.cfg, opts.logger
			if addr == "" {
				addr = cfg.Server.HTTPAddr
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			store := storage.New(cfg.Storage.UploadDir, cfg.MaxUploadBytes(), logger)
			srv := server.NewServer(server.Config{AllowOrigins: cfg.Server.AllowOrigins}, a.proc, store, a.repo, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx, addr) })
			if cfg.Server.GRPCHealthAddr != "" {
				g.Go(func() error {
					return server.ServeGRPCHealth(gctx, cfg.Server.GRPCHealthAddr, a.proc.Ready, healthRefresh, logger)
				})
			}
			if watch {
				g.Go(func() error { return runInbox(gctx, a, cfg.Pipeline.InboxDir, false) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default HTTP_ADDR)")
	cmd.Flags().BoolVar(&watch, "watch", false, "also process documents dropped into INBOX_DIR")
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one document and print the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if !storage.IsValidFile(path) {
				return fmt.Errorf("%s: only PDF, JPG and PNG files are supported", args[0])
			}
			dt, err := constants.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			if _, err := storage.Info(path); err != nil {
				return err
			}
			hash, err := storage.HashFile(path)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.proc.Process(ctx, pipeline.Document{
				Path:         path,
				Filename:     filepath.Base(path),
				DocumentType: dt,
				SHA256:       hash,
				UploadTime:   time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", constants.DefaultDocumentType.String(), "Rent Agreement, Title Deed or NOC")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		dir  string
		once bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process documents dropped into the inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = opts.cfg.Pipeline.InboxDir
			}
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return runInbox(cmd.Context(), a, dir, once)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "inbox root with one folder per document type (default INBOX_DIR)")
	cmd.Flags().BoolVar(&once, "once", false, "scan the inbox once, wait for the queue to drain and exit")
	return cmd
}

// runInbox feeds the inbox into a worker queue until ctx is cancelled, or
// until one scan has been processed when once is set.
func runInbox(ctx context.Context, a *app, dir string, once bool) error {
	cfg := a.cfg.Pipeline
	qopts := []async.Option{
		async.WithWorkers(cfg.Workers),
		async.WithQueueSize(cfg.QueueSize),
		async.WithProcessTimeout(cfg.ProcessTimeout),
	}
	if a.repo != nil {
		qopts = append(qopts, async.WithRepository(a.repo))
	}
	queue := async.NewProcessorQueue(a.proc, a.logger, qopts...)
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		queue.Shutdown(sctx)
	}()

	ing, err := ingest.NewIngestor(dir, queue, "", a.logger)
	if err != nil {
		return err
	}
	if !once {
		err := ing.Run(ctx, watchDebounce)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if err := ing.EnsureLayout(); err != nil {
		return err
	}
	_, stats, err := ing.IngestDirectory(ctx, true)
	if err != nil {
		return err
	}
	a.logger.Info("inbox.scan.complete",
		"root", ing.Root(),
		"scanned", stats.Scanned,
		"queued", stats.Succeeded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return nil
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return mcp.NewServer(a.proc, a.repo, version, opts.logger).Run()
		},
	}
}

func newDBHealthCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Check that the analysis history database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg.Database
			if cfg.Driver == repository.DriverNone {
				fmt.Fprintln(cmd.OutOrStdout(), "DB health: disabled (DB_DRIVER=none)")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			repo, err := repository.Open(ctx, repository.Config{
				Driver:      cfg.Driver,
				DSN:         cfg.DSN,
				MaxConns:    1,
				DialTimeout: cfg.DialTimeout,
			}, opts.logger)
			if err != nil {
				return fmt.Errorf("DB health: FAILED: %w", err)
			}
			defer func() { _ = repo.Close() }()

			if err := repository.HealthCheck(ctx, repo, timeout, opts.logger); err != nil {
				return fmt.Errorf("DB health: FAILED: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "DB health: OK")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall timeout")
	return cmd
}
