package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qchat-dev/qchat-go/internal/app"
	"github.com/qchat-dev/qchat-go/internal/arbiter"
	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Answer one message with the configured arbiter",
		Long: `Runs the same answer pipeline as POST /api/chat once and prints the
reply with its source. Profile questions read the configured profile store;
no profile extraction is queued.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, user, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", arbiter.Anonymous, "username whose profile answers personal questions")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *globalOptions, user, message string) error {
	cfg, log, err := opts.load(cmd, config.ServerMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), config.ChatProcessing)
	defer cancel()

	db, err := storage.New(ctx, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = db.Close() }()

	core, err := app.NewCore(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	profiles, closeProfiles, err := app.OpenProfileStore(ctx, cfg, db, log)
	if err != nil {
		return fmt.Errorf("profile store: %w", err)
	}
	defer func() { _ = closeProfiles(context.Background()) }()

	arb, err := core.NewArbiter(profiles, nil)
	if err != nil {
		return err
	}

	reply := arb.Answer(ctx, arbiter.Request{Message: message, Username: user})
	if opts.json {
		return printJSON(cmd, reply)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, reply.Reply)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "source: %s", reply.Source)
	if reply.Source == arbiter.SourceFAQ {
		fmt.Fprintf(out, " (%s, score %d)", reply.Category, reply.FAQScore)
	}
	fmt.Fprintln(out)
	for _, s := range reply.Sources {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	return nil
}
