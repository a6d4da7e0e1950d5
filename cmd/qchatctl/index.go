package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qchat-dev/qchat-go/internal/app"
	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/index"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or inspect the document index",
	}
	cmd.AddCommand(newIndexBuildCmd(opts), newIndexStatsCmd(opts))
	return cmd
}

func newIndexBuildCmd(opts *globalOptions) *cobra.Command {
	var maxURLs int
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch every source URL, embed the chunks and persist the index",
		Long: `Rebuilds the document index from the configured URL list.
With R2 enabled the build takes the distributed lock and uploads a snapshot
for the other instances. Exits non-zero when the build fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexBuild(cmd, opts, maxURLs)
		},
	}
	cmd.Flags().IntVar(&maxURLs, "max-urls", 0, "build from the first N URLs only (0 = all, default from QCHAT_INDEX_MAX_URLS)")
	return cmd
}

func runIndexBuild(cmd *cobra.Command, opts *globalOptions, maxURLs int) error {
	cfg, log, err := opts.load(cmd, config.BuildMode)
	if err != nil {
		return err
	}
	if maxURLs <= 0 {
		maxURLs = cfg.Index.MaxURLs
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.IndexBuild)
	defer cancel()

	core, err := app.NewCore(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	start := time.Now()
	manifest, err := core.BuildIndex(ctx, maxURLs)
	if errors.Is(err, index.ErrBuildLocked) {
		return fmt.Errorf("another instance is building the index: %w", err)
	}
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	if opts.json {
		return printJSON(cmd, manifest)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Index built in %s: %d pages, %d chunks (%s, %d dims)\n",
		time.Since(start).Round(time.Second), manifest.Pages, manifest.Chunks,
		manifest.EmbeddingModel, manifest.Dimensions)
	return nil
}

func newIndexStatsCmd(opts *globalOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the persisted index manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				cfg, _, err := opts.load(cmd, config.BuildMode)
				if err != nil {
					return err
				}
				dir = cfg.Index.Dir
			}
			return runIndexStats(cmd, opts, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "index directory (default from QCHAT_INDEX_DIR)")
	return cmd
}

func runIndexStats(cmd *cobra.Command, opts *globalOptions, dir string) error {
	manifest, err := index.ReadManifest(dir)
	if errors.Is(err, domerrors.ErrIndexNotBuilt) {
		return fmt.Errorf("no index in %s; run 'qchatctl index build'", dir)
	}
	if err != nil {
		return err
	}

	if opts.json {
		return printJSON(cmd, manifest)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Directory:  %s\n", dir)
	fmt.Fprintf(out, "Built at:   %s\n", manifest.BuiltAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Model:      %s (%d dims)\n", manifest.EmbeddingModel, manifest.Dimensions)
	fmt.Fprintf(out, "Pages:      %d of %d URLs\n", manifest.Pages, len(manifest.URLs))
	fmt.Fprintf(out, "Chunks:     %d\n", manifest.Chunks)
	return nil
}
