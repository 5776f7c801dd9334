package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/catalog"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/core/ports"
)

var errValidationFailed = errors.New("connection validation failed")

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the enabled integrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			for _, in := range a.catalog.Integrations() {
				fmt.Fprintf(w, "%s (%d actions)\n", bold.Sprint(in.Name()), len(in.Actions()))
				if d := in.Description(); d != "" {
					fmt.Fprintf(w, "  %s\n", d)
				}
			}
			return nil
		},
	}
}

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <integration>",
		Short: "Show the actions of an integration and their parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.catalog.Integration(args[0])
			if err != nil {
				return err
			}
			printIntegration(cmd, in)
			return nil
		},
	}
}

func printIntegration(cmd *cobra.Command, in ports.Integration) {
	w := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	fmt.Fprintf(w, "%s\n", bold.Sprint(in.Name()))
	for _, act := range in.Actions() {
		fmt.Fprintf(w, "├─ %s - %s\n", act.ID, act.Name)
		for _, p := range act.Params {
			var notes []string
			if p.Optional {
				notes = append(notes, "optional")
			}
			if p.Default != "" {
				notes = append(notes, "default "+p.Default)
			}
			if len(p.Options) > 0 {
				notes = append(notes, "one of "+strings.Join(p.Options, "|"))
			}
			line := fmt.Sprintf("│    %s (%s)", p.Name, p.Type)
			if len(notes) > 0 {
				line += " " + faint.Sprintf("[%s]", strings.Join(notes, ", "))
			}
			if p.Description != "" {
				line += ": " + p.Description
			}
			fmt.Fprintln(w, line)
		}
	}
}

type runOptions struct {
	params  []string
	file    string
	query   string
	startMs string
	endMs   string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <integration> <action>",
		Short: "Invoke an action and print its result as JSON",
		Example: `  soarctl run "Regex Actions" extract_multi -p search_from="a1 b2" -p 'regex_exp=\w\d'
  soarctl run sentinelone list_agents --query '.[0].id'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(opts.params, opts.file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if window, ok := executionWindow(opts); ok {
				ctx = domain.WithExecutionWindow(ctx, window)
			}

			result, err := a.catalog.Invoke(ctx, args[0], args[1], params)
			if err != nil {
				return err
			}
			if catalog.HasSoftError(result) {
				color.New(color.FgYellow).Fprintln(cmd.ErrOrStderr(), "⚠️  action reported an error")
			}
			return render(cmd.OutOrStdout(), result, opts.query)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "action parameter as name=value, repeatable")
	cmd.Flags().StringVarP(&opts.file, "params-file", "f", "", "JSON object of parameters; -p values override it")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "jq expression applied to the result")
	cmd.Flags().StringVar(&opts.startMs, "start-ms", "", "execution window start in epoch ms (default $"+config.ExecutionStartEnv+")")
	cmd.Flags().StringVar(&opts.endMs, "end-ms", "", "execution window end in epoch ms (default $"+config.ExecutionEndEnv+")")
	return cmd
}

func executionWindow(opts runOptions) (domain.ExecutionWindow, bool) {
	if opts.startMs != "" || opts.endMs != "" {
		return config.ParseExecutionWindow(opts.startMs, opts.endMs)
	}
	return config.ExecutionWindowFromEnv()
}

// parseParams merges the params file with name=value pairs; later values win.
func parseParams(pairs []string, file string) (domain.Args, error) {
	args := domain.Args{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file: %w", err)
		}
		fromFile, err := decodeParams(data)
		if err != nil {
			return nil, fmt.Errorf("invalid params file %s: %w", file, err)
		}
		for k, v := range fromFile {
			args[k] = v
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", pair)
		}
		args[name] = value
	}
	return args, nil
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [integration]",
		Short: "Check connection profiles against the vendors",
		Long:  "Without an argument every integration able to check its connection is validated concurrently.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			results := map[string]error{}
			if len(args) == 1 {
				in, err := a.catalog.Integration(args[0])
				if err != nil {
					return err
				}
				results[in.Name()] = a.catalog.Validate(ctx, args[0])
			} else {
				results = a.catalog.ValidateAll(ctx)
			}

			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			w := cmd.OutOrStdout()
			green, red := color.New(color.FgGreen), color.New(color.FgRed)
			failed := 0
			for _, name := range names {
				if err := results[name]; err != nil {
					failed++
					red.Fprintf(w, "❌ %s: %v\n", name, err)
					continue
				}
				green.Fprintf(w, "✅ %s\n", name)
			}
			if failed > 0 {
				return fmt.Errorf("%w for %d of %d integrations", errValidationFailed, failed, len(names))
			}
			return nil
		},
	}
}
