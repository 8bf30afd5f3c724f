package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"woonbot/internal/app"
	"woonbot/internal/bot"
	"woonbot/internal/config"
	"woonbot/internal/tui"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "woonbot",
		Short:         "Apply to WoonnetRijnmond rental listings at the moment they open",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c",
		filepath.Join(config.DefaultAppDir(), "config.yaml"), "config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(g),
		newScheduleCmd(g),
		newTestCmd(g),
		newDaemonCmd(g),
		newCredsCmd(g),
	)
	return root
}

func (g *globalFlags) app(logLevel string) (*app.App, error) {
	if g.logLevel != "" {
		logLevel = g.logLevel
	}
	return app.New(app.Options{ConfigPath: g.configPath, LogLevel: logLevel, Version: version})
}

// selectionFlags registers --count, --max, --ids, --reapply and --dry-run.
func selectionFlags(cmd *cobra.Command, f *app.RunFlags) {
	cmd.Flags().IntVarP(&f.Count, "count", "n", 1, "apply to the N cheapest listings")
	cmd.Flags().BoolVar(&f.Max, "max", false, "apply to every available listing")
	cmd.Flags().StringSliceVar(&f.IDs, "ids", nil, "explicit listing ids, in order of preference")
	cmd.Flags().BoolVar(&f.Reapply, "reapply", false, "include listings applied to before")
	cmd.Flags().BoolVar(&f.DryRun, "dry-run", false, "find the apply button but do not click it")
}

func markSet(cmd *cobra.Command, f *app.RunFlags) {
	f.CountSet = cmd.Flags().Changed("count")
	f.MaxSet = cmd.Flags().Changed("max")
	f.IDsSet = cmd.Flags().Changed("ids")
}

func printResult(cmd *cobra.Command, res bot.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Summary())
	for _, id := range res.FailedIDs() {
		fmt.Fprintf(out, "  %s: %v\n", id, res.Failures[id])
	}
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &app.RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and apply right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			markSet(cmd, f)
			a, err := g.app("")
			if err != nil {
				return err
			}
			res, err := a.Run(cmd.Context(), bot.ModeNow, *f)
			printResult(cmd, res)
			return err
		},
	}
	selectionFlags(cmd, f)
	return cmd
}

func newScheduleCmd(g *globalFlags) *cobra.Command {
	f := &app.RunFlags{}
	var withTUI bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Poll during today's window and apply at the apply moment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			markSet(cmd, f)
			level := ""
			if withTUI {
				// Console logs would tear the view.
				level = "error"
			}
			a, err := g.app(level)
			if err != nil {
				return err
			}
			var res bot.Result
			if withTUI {
				res, err = tui.Run(cmd.Context(), a.Bus(), a.Bot().Window(), func(ctx context.Context) (bot.Result, error) {
					return a.Run(ctx, bot.ModeScheduled, *f)
				})
			} else {
				res, err = a.Run(cmd.Context(), bot.ModeScheduled, *f)
			}
			printResult(cmd, res)
			return err
		},
	}
	selectionFlags(cmd, f)
	cmd.Flags().BoolVar(&withTUI, "tui", false, "show the countdown view")
	return cmd
}

func newTestCmd(g *globalFlags) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "test <listing-id>",
		Short: "Open one listing and check that it can be applied to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app("")
			if err != nil {
				return err
			}
			res, err := a.RunTest(cmd.Context(), args[0], apply)
			printResult(cmd, res)
			return err
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "actually submit the application")
	return cmd
}

func newDaemonCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run every day on the configured trigger, with Telegram control",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app("")
			if err != nil {
				return err
			}
			return a.Daemon(cmd.Context())
		},
	}
}
