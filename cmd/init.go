package cmd

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/katiefenn/warden/internal/detect"
	"github.com/mattn/go-isatty"
)

const starterManifest = `# Capabilities this project is allowed to use.
# Undeclared capability use fails ` + "`warden audit`" + `.
capabilities: []
`

const starterConfig = `# Repo-local warden defaults. Flags and WARDEN_* env override these.
# workers: 4
# scope_aware: true
# fail_on: fail
`

const starterPolicy = `api_version: warden/policy/v1
defaults:
  fail_on: fail
  require_manifest: false
  max_dynamic_warnings: 0
`

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	withPolicy := fs.Bool("with-policy", false, "Also write a starter .warden/policy.yml")
	noHook := fs.Bool("no-hook", false, "Skip the pre-commit hook prompt")

	if err := fs.Parse(args); err != nil {
		return err
	}
	root := "."
	if remaining := fs.Args(); len(remaining) == 1 {
		root = remaining[0]
	} else if len(remaining) > 1 {
		return usageError("usage: warden init [<dir>] [flags]")
	}

	project := detect.Project(root)
	fmt.Printf("project type: %s\n", project.Label)

	wardenDir := filepath.Join(root, ".warden")
	if err := os.MkdirAll(wardenDir, 0o755); err != nil {
		return fmt.Errorf("create .warden: %w", err)
	}

	wrote := []string{}
	manifestPath := filepath.Join(root, "warden.yml")
	if created, err := writeIfMissing(manifestPath, starterManifest); err != nil {
		return err
	} else if created {
		wrote = append(wrote, manifestPath)
	}

	configPath := filepath.Join(wardenDir, "config.yml")
	if created, err := writeIfMissing(configPath, starterConfig); err != nil {
		return err
	} else if created {
		wrote = append(wrote, configPath)
	}

	if *withPolicy {
		policyPath := filepath.Join(wardenDir, "policy.yml")
		if created, err := writeIfMissing(policyPath, starterPolicy); err != nil {
			return err
		} else if created {
			wrote = append(wrote, policyPath)
		}
	}

	if len(wrote) == 0 {
		fmt.Println("nothing to do: warden files already present")
	} else {
		for _, path := range wrote {
			fmt.Printf("created: %s\n", path)
		}
	}

	if !*noHook && isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print("install pre-commit hook? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(answer), "y") {
			if err := runHooksInstall(nil); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}
	}

	fmt.Println("next: declare capabilities in warden.yml, then run `warden audit .`")
	return nil
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	keep := fs.Int("keep", 5, "Number of newest run directories to keep")
	runsDir := fs.String("runs-dir", filepath.Join(".warden", "runs"), "Run artifacts directory")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("clear does not accept positional args")
	}
	if *keep < 0 {
		return errors.New("--keep must be >= 0")
	}

	entries, err := os.ReadDir(*runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no run artifacts to clear")
			return nil
		}
		return fmt.Errorf("read runs dir: %w", err)
	}

	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	// Run directory names are timestamps, so name order is age order.
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))

	removed := 0
	for i, name := range runs {
		if i < *keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(*runsDir, name)); err != nil {
			return fmt.Errorf("remove run %s: %w", name, err)
		}
		removed++
	}

	fmt.Printf("removed %d run directories (kept %d newest)\n", removed, min(*keep, len(runs)))
	return nil
}
