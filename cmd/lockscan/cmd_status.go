package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/lock"
	"github.com/fbkclanna/lockscan/internal/scan"
	"github.com/fbkclanna/lockscan/internal/ui"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show input files that changed since the lock state was recorded",
		RunE:  runStatus,
	}
	cmd.Flags().String("request", "", "Request file (default <source>/lockscan.yaml)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().Bool("check", false, "Exit with an error when the lock state is out of date")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	check, _ := cmd.Flags().GetBool("check")
	out := cmd.OutOrStdout()

	ctx, err := loadWorkspace(cmd, cfg)
	if err != nil {
		return err
	}
	if ctx.Request == nil {
		return apperr.InvalidInput(fmt.Sprintf("No request file found at %s", ctx.RequestPath))
	}
	if ctx.Lock == nil {
		return apperr.InvalidInput(
			fmt.Sprintf("No lock state found at %s", ctx.LockPath),
			apperr.WithSolution("Run 'lockscan scan --update-lock' to record one."),
		)
	}

	cur, err := scan.CurrentState(ctx.Source, ctx.Request, ctx.Lock)
	if err != nil {
		return err
	}
	changes := lock.Diff(ctx.Lock, cur)
	if changes == nil {
		changes = []lock.Change{}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(changes); err != nil {
			return err
		}
	} else {
		paint := ui.NewPainter(out)
		_, _ = fmt.Fprintln(out, paint.Header(fmt.Sprintf("Lock state %s (generated %s by lockscan %s)",
			ctx.LockPath, ctx.Lock.GeneratedAt, ctx.Lock.ToolVersion)))
		if len(changes) == 0 {
			_, _ = fmt.Fprintln(out, paint.OK("Up to date: "+strings.Join(ctx.Lock.PackageKeys(), ", ")))
		} else {
			tbl := ui.NewTable(out, "PACKAGE", "FILE", "CHANGE")
			for _, c := range changes {
				tbl.Row(c.Package, c.File, string(c.Kind))
			}
			if err := tbl.Flush(); err != nil {
				return err
			}
		}
	}

	if check && len(changes) > 0 {
		return fmt.Errorf("lock state is out of date (%d changes)", len(changes))
	}
	return nil
}
