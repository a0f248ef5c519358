package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-drift/scan/pkg/denial"
	"github.com/go-drift/scan/pkg/scanner"
	"github.com/go-drift/scan/pkg/theme"
)

// withApp opens the app with no device collaborators, runs fn and closes
// the app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *scanner.App) error) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, scanner.Deps{})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

var denialsCmd = &cobra.Command{
	Use:   "denials",
	Short: "Inspect or reset the persisted camera denial count",
}

var denialsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the denial count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *scanner.App) error {
			n, err := app.Tracker.Get(ctx, denial.Camera)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d (threshold %d)\n", denial.Camera, n, app.Gate.Threshold())
			return nil
		})
	},
}

var denialsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the denial count to zero",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *scanner.App) error {
			if err := denial.Reset(ctx, app.Tracker, denial.Camera); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: 0\n", denial.Camera)
			return nil
		})
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show or change the theme preference",
}

var themeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored theme mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, app *scanner.App) error {
			pref := app.Home.Theme()
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", pref.Mode(), pref.Brightness())
			return nil
		})
	},
}

var themeSetCmd = &cobra.Command{
	Use:       "set <light|dark|system>",
	Short:     "Store a theme mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(theme.ModeLight), string(theme.ModeDark), string(theme.ModeSystem)},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := theme.ParseMode(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *scanner.App) error {
			if err := app.Home.Theme().Set(ctx, mode); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		})
	},
}

var themeToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Flip between light and dark",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *scanner.App) error {
			mode, err := app.Home.ToggleTheme(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		})
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or clear the scan history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print recent scans, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *scanner.App) error {
			entries, err := app.Home.History(ctx, historyLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no scans")
				return nil
			}
			for _, e := range entries {
				formats := make([]string, len(e.Formats))
				for i, f := range e.Formats {
					formats[i] = string(f)
				}
				fmt.Fprintf(out, "%s  %s  [%s]\n", e.ScannedAt.Local().Format(time.DateTime), e.ID, strings.Join(formats, ","))
				for line := range strings.SplitSeq(e.Text, "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
			}
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *scanner.App) error {
			if err := app.Home.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		})
	},
}

func init() {
	denialsCmd.AddCommand(denialsGetCmd, denialsResetCmd)
	themeCmd.AddCommand(themeGetCmd, themeSetCmd, themeToggleCmd)
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "entries to show (0 for all)")
	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(denialsCmd, themeCmd, historyCmd)
}
