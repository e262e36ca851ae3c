package cmd

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/katiefenn/warden/internal/config"
	"github.com/katiefenn/warden/internal/history"
)

func runHistory(args []string) error {
	if len(args) == 0 {
		return usageError("usage: warden history <list|show|prune> [flags]")
	}
	switch args[0] {
	case "list":
		return runHistoryList(args[1:])
	case "show":
		return runHistoryShow(args[1:])
	case "prune":
		return runHistoryPrune(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown history subcommand %q", args[0]))
	}
}

func openHistory(pathFlag string) (*history.Store, error) {
	path := pathFlag
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

func runHistoryList(args []string) error {
	fs := flag.NewFlagSet("history list", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	db := fs.String("db", "", "History database path (default ~/.warden/history.db)")
	limit := fs.Int("limit", 20, "Maximum rows to show")
	jsonOut := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("history list does not accept positional args")
	}

	store, err := openHistory(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(*limit)
	if err != nil {
		return err
	}

	if *jsonOut {
		b, jsonErr := json.MarshalIndent(entries, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("marshal history: %w", jsonErr)
		}
		fmt.Println(string(b))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	fmt.Printf("%-18s %-6s %-10s %-8s %-8s %s\n", "RUN", "STATUS", "VIOLATIONS", "WARNS", "FILES", "COMPLETED")
	for _, e := range entries {
		fmt.Printf("%-18s %-6s %-10d %-8d %-8d %s\n",
			e.RunID, e.Status, e.Violations, e.DynamicWarnings, e.AnalyzedFiles,
			e.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runHistoryShow(args []string) error {
	fs := flag.NewFlagSet("history show", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	db := fs.String("db", "", "History database path (default ~/.warden/history.db)")
	jsonOut := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return errors.New("expected run id")
	}
	runID := fs.Args()[0]

	store, err := openHistory(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Show(runID)
	if err != nil {
		return err
	}

	if *jsonOut {
		b, jsonErr := json.MarshalIndent(entry, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("marshal history entry: %w", jsonErr)
		}
		fmt.Println(string(b))
		return nil
	}

	fmt.Printf("run id:         %s\n", entry.RunID)
	if entry.ReportGUID != "" {
		fmt.Printf("report guid:    %s\n", entry.ReportGUID)
	}
	fmt.Printf("input:          %s\n", entry.InputPath)
	fmt.Printf("status:         %s\n", entry.Status)
	fmt.Printf("violations:     %d\n", entry.Violations)
	fmt.Printf("dynamic warns:  %d\n", entry.DynamicWarnings)
	fmt.Printf("suppressed:     %d\n", entry.Suppressed)
	fmt.Printf("analyzed files: %d\n", entry.AnalyzedFiles)
	fmt.Printf("duration:       %dms\n", entry.DurationMS)
	fmt.Printf("policy passed:  %t\n", entry.PolicyPassed)
	fmt.Printf("completed at:   %s\n", entry.CompletedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runHistoryPrune(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("history prune", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	db := fs.String("db", "", "History database path (default ~/.warden/history.db)")
	keep := fs.Int("keep", intOr(cfg.HistoryKeep, 50), "Number of newest runs to keep")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("history prune does not accept positional args")
	}
	if *keep < 0 {
		return errors.New("--keep must be >= 0")
	}

	store, err := openHistory(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Prune(*keep)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d runs (kept %d newest)\n", removed, *keep)
	return nil
}
