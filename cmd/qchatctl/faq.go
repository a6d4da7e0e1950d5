package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qchat-dev/qchat-go/internal/faq"
)

// errNoMatch makes "faq match" exit non-zero when nothing scores high enough.
var errNoMatch = errors.New("no FAQ entry matched")

type faqMatchResult struct {
	Matched  bool   `json:"matched"`
	Score    int    `json:"score,omitempty"`
	Category string `json:"category,omitempty"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

func newFAQCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faq",
		Short: "Query the built-in FAQ table",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "match [message]",
		Short: "Show the FAQ entry a message would be answered with",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := faq.Default()
			if err != nil {
				return err
			}
			return runFAQMatch(cmd, opts, table, strings.Join(args, " "))
		},
	})
	return cmd
}

func runFAQMatch(cmd *cobra.Command, opts *globalOptions, table *faq.Table, message string) error {
	var res faqMatchResult
	if m, ok := table.Match(message); ok {
		res = faqMatchResult{
			Matched:  true,
			Score:    m.Score,
			Category: m.Entry.Category,
			Question: m.Entry.Question,
			Answer:   m.Entry.Answer,
		}
	}

	if opts.json {
		if err := printJSON(cmd, res); err != nil {
			return err
		}
	} else if res.Matched {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (score %d)\n\n%s\n", res.Category, res.Question, res.Score, res.Answer)
	}
	if !res.Matched {
		return errNoMatch
	}
	return nil
}
