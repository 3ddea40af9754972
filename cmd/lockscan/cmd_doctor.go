package main

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/config"
	"github.com/fbkclanna/lockscan/internal/git"
	"github.com/fbkclanna/lockscan/internal/scan"
	"github.com/fbkclanna/lockscan/internal/ui"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the configuration, source directory and request",
		// Config errors are reported as a failed check.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	paint := ui.NewPainter(out)
	ok := true

	_, _ = fmt.Fprintln(out, paint.Header("Tools"))
	for _, tool := range []string{"git", "go"} {
		_, _ = fmt.Fprintf(out, "Checking %s... ", tool)
		if p, err := exec.LookPath(tool); err != nil {
			_, _ = fmt.Fprintln(out, paint.Warn("not found (optional)"))
		} else {
			_, _ = fmt.Fprintf(out, "found at %s\n", p)
		}
	}

	_, _ = fmt.Fprintln(out, paint.Header("Configuration"))
	_, _ = fmt.Fprint(out, "Checking config... ")
	cfg, err := loadConfig(cmd)
	if err != nil {
		_, _ = fmt.Fprintln(out, paint.Error("FAILED"))
		_, _ = fmt.Fprintf(out, "  %v\n", err)
		ok = false
		cfg = &config.Config{RequestFile: workspace.DefaultRequestFile}
	} else {
		_, _ = fmt.Fprintf(out, "%s (jobs=%d, mode=%s)\n", paint.OK("OK"), cfg.Jobs, cfg.Mode)
	}

	_, _ = fmt.Fprintln(out, paint.Header("Source"))
	source, _ := cmd.Flags().GetString("source")
	_, _ = fmt.Fprint(out, "Checking git repository... ")
	if id, err := git.GetRepoID(source); err != nil {
		_, _ = fmt.Fprintln(out, paint.Warn("unavailable"))
		_, _ = fmt.Fprintf(out, "  %v\n  vcs_url qualifiers will be omitted\n", err)
	} else {
		_, _ = fmt.Fprintf(out, "%s %s@%s\n", paint.OK("OK"), id.OriginURL, id.Commit)
		if tags, err := git.HeadTags(source); err == nil && len(tags) > 0 {
			_, _ = fmt.Fprintf(out, "  tags at HEAD: %s\n", strings.Join(tags, ", "))
		}
	}

	if !checkRequest(cmd, out, paint, cfg) {
		ok = false
	}

	if ok {
		_, _ = fmt.Fprintln(out, "\nAll checks passed.")
		return nil
	}
	_, _ = fmt.Fprintln(out, "\nSome checks failed. See above for details.")
	return fmt.Errorf("doctor checks failed")
}

// checkRequest loads the request and checks every package directory.
func checkRequest(cmd *cobra.Command, out io.Writer, paint ui.Painter, cfg *config.Config) bool {
	_, _ = fmt.Fprint(out, "Checking request... ")
	ctx, err := loadWorkspace(cmd, cfg)
	if err != nil {
		_, _ = fmt.Fprintln(out, paint.Error("FAILED"))
		_, _ = fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(err.Error(), "\n", "\n  "))
		return false
	}
	if ctx.Request == nil {
		_, _ = fmt.Fprintf(out, "%s\n", paint.Warn("not found at "+ctx.RequestPath+" (skipping package checks)"))
		return true
	}
	_, _ = fmt.Fprintf(out, "%s (%d packages)\n", paint.OK("OK"), len(ctx.Request.Packages))

	ok := true
	resolvers := scan.DefaultRegistry()
	for _, p := range ctx.Request.Packages {
		_, _ = fmt.Fprintf(out, "  Checking %s... ", p.Key())
		if _, err := resolvers.Lookup(p.Type); err != nil {
			_, _ = fmt.Fprintf(out, "%s %v\n", paint.Error("FAILED"), err)
			ok = false
			continue
		}
		dir, err := ctx.PackageDir(p)
		switch {
		case err != nil:
			_, _ = fmt.Fprintf(out, "%s %v\n", paint.Error("FAILED"), err)
			ok = false
		case !dir.IsDir():
			_, _ = fmt.Fprintf(out, "%s directory %s does not exist\n", paint.Error("FAILED"), dir.Subpath())
			ok = false
		default:
			_, _ = fmt.Fprintln(out, paint.OK("OK"))
		}
	}
	return ok
}
