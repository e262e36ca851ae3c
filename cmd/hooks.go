package cmd

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/katiefenn/warden/internal/git"
)

const hookMarker = "# managed by warden hooks"

const hookScript = `#!/bin/sh
` + hookMarker + `
# Scans staged JavaScript for undeclared capability use before commit.
# Remove with: warden hooks remove
exec warden scan --staged
`

func runHooks(args []string) error {
	if len(args) == 0 {
		return usageError("usage: warden hooks <install|remove|status> [flags]")
	}
	switch args[0] {
	case "install":
		return runHooksInstall(args[1:])
	case "remove":
		return runHooksRemove(args[1:])
	case "status":
		return runHooksStatus(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown hooks subcommand %q", args[0]))
	}
}

func hookPath() (string, error) {
	if !git.Available() {
		return "", errors.New("git is not available on PATH")
	}
	root, err := git.RepoRoot(".")
	if err != nil {
		return "", err
	}
	return filepath.Join(root, ".git", "hooks", "pre-commit"), nil
}

func runHooksInstall(args []string) error {
	fs := flag.NewFlagSet("hooks install", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	force := fs.Bool("force", false, "Overwrite an existing unmanaged pre-commit hook")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("hooks install does not accept positional args")
	}

	path, err := hookPath()
	if err != nil {
		return err
	}

	if existing, readErr := os.ReadFile(path); readErr == nil {
		if !strings.Contains(string(existing), hookMarker) && !*force {
			return fmt.Errorf("pre-commit hook exists and is not managed by warden (use --force to overwrite): %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create hooks dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hookScript), 0o755); err != nil {
		return fmt.Errorf("write pre-commit hook: %w", err)
	}

	fmt.Printf("installed pre-commit hook: %s\n", path)
	return nil
}

func runHooksRemove(args []string) error {
	fs := flag.NewFlagSet("hooks remove", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	force := fs.Bool("force", false, "Remove even an unmanaged pre-commit hook")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("hooks remove does not accept positional args")
	}

	path, err := hookPath()
	if err != nil {
		return err
	}

	existing, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			fmt.Println("no pre-commit hook installed")
			return nil
		}
		return fmt.Errorf("read pre-commit hook: %w", readErr)
	}
	if !strings.Contains(string(existing), hookMarker) && !*force {
		return fmt.Errorf("pre-commit hook is not managed by warden (use --force to remove): %s", path)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove pre-commit hook: %w", err)
	}
	fmt.Printf("removed pre-commit hook: %s\n", path)
	return nil
}

func runHooksStatus(args []string) error {
	fs := flag.NewFlagSet("hooks status", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("hooks status does not accept positional args")
	}

	path, err := hookPath()
	if err != nil {
		return err
	}

	existing, readErr := os.ReadFile(path)
	switch {
	case os.IsNotExist(readErr):
		fmt.Println("pre-commit hook: not installed")
	case readErr != nil:
		return fmt.Errorf("read pre-commit hook: %w", readErr)
	case strings.Contains(string(existing), hookMarker):
		fmt.Printf("pre-commit hook: installed (managed) at %s\n", path)
	default:
		fmt.Printf("pre-commit hook: present but unmanaged at %s\n", path)
	}
	return nil
}
