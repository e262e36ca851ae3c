package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/katiefenn/warden/internal/comment"
	"github.com/katiefenn/warden/internal/diff"
	"github.com/katiefenn/warden/internal/doctor"
	"github.com/katiefenn/warden/internal/matrix"
	"github.com/katiefenn/warden/internal/safefile"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	strict := fs.Bool("strict", false, "Exit non-zero on warnings too")
	jsonOut := fs.Bool("json", false, "Emit JSON")
	cwd := fs.String("cwd", "", "Directory to diagnose (default current directory)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("doctor does not accept positional args")
	}

	report := doctor.BuildReport(context.Background(), doctor.Options{CWD: *cwd})

	if *jsonOut {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal doctor report: %w", err)
		}
		fmt.Println(string(b))
	} else {
		for _, check := range report.Checks {
			fmt.Printf("%-8s %-22s %s\n", statusMark(check.Status), check.ID, check.Message)
		}
		fmt.Printf("\npass=%d warning=%d fail=%d\n", report.Summary.Pass, report.Summary.Warning, report.Summary.Fail)
	}

	if report.Failed(*strict) {
		return &ExitError{Code: 1, Message: "environment checks failed"}
	}
	return nil
}

func statusMark(s doctor.Status) string {
	switch s {
	case doctor.StatusPass:
		return "ok"
	case doctor.StatusWarn:
		return "warn"
	default:
		return "FAIL"
	}
}

func runComment(args []string) error {
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	reportPath := fs.String("report", "", "Audit report JSON (required)")
	baselinePath := fs.String("baseline", "", "Baseline report JSON for a diff-led comment")
	showSuppressed := fs.Bool("show-suppressed", false, "Include suppressed findings in a details block")
	outPath := fs.String("out", "", "Write the comment to a file instead of stdout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	remaining := fs.Args()
	if *reportPath == "" && len(remaining) == 1 {
		*reportPath = remaining[0]
		remaining = nil
	}
	if len(remaining) != 0 {
		return usageError("usage: warden comment --report <report.json> [flags]")
	}
	if strings.TrimSpace(*reportPath) == "" {
		return errors.New("--report is required")
	}

	report, err := diff.LoadReport(*reportPath)
	if err != nil {
		return err
	}

	var diffReport *diff.DiffReport
	if strings.TrimSpace(*baselinePath) != "" {
		baseline, loadErr := diff.LoadReport(*baselinePath)
		if loadErr != nil {
			return loadErr
		}
		dr := diff.Compare(baseline, report)
		diffReport = &dr
	}

	body := comment.Generate(report, diffReport, comment.Options{ShowSuppressed: *showSuppressed})
	if strings.TrimSpace(*outPath) != "" {
		if err := safefile.WriteFileAtomic(*outPath, []byte(body), 0o600); err != nil {
			return err
		}
		fmt.Printf("wrote comment: %s\n", *outPath)
		return nil
	}
	fmt.Print(body)
	return nil
}

func runMatrix(args []string) error {
	fs := flag.NewFlagSet("matrix", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	configPath := fs.String("config", "", "Matrix config (default ./.warden/matrix.yaml)")
	outDir := fs.String("out", "", "Output directory (default ./.warden/matrix)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("matrix does not accept positional args")
	}

	if strings.TrimSpace(*configPath) == "" {
		*configPath = matrix.DefaultPath()
	}
	cfg, err := matrix.Load(*configPath)
	if err != nil {
		return err
	}

	summary, err := matrix.Run(context.Background(), cfg, matrix.RunOptions{
		ConfigPath: *configPath,
		OutDir:     *outDir,
	})
	if err != nil {
		return err
	}

	for _, target := range summary.Targets {
		fmt.Printf("%-24s status=%-6s violations=%-4d warnings=%-4d duration=%dms\n",
			target.Name, target.Status, target.Violations, target.DynamicWarnings, target.DurationMS)
		if target.Error != "" {
			fmt.Fprintf(os.Stderr, "  error: %s\n", target.Error)
		}
	}
	fmt.Printf("targets=%d failed=%d violations=%d\n", len(summary.Targets), summary.FailedTargets, summary.TotalViolations)

	if !summary.Passed {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d targets failed", summary.FailedTargets)}
	}
	return nil
}
