package cmd

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/packs"
)

func runPacks(args []string) error {
	if len(args) == 0 {
		return usageError("usage: warden packs <add|remove|list|install|update|verify> [flags]")
	}

	switch args[0] {
	case "add":
		return runPacksAdd(args[1:])
	case "remove":
		return runPacksRemove(args[1:])
	case "list":
		return runPacksList(args[1:])
	case "install":
		return runPacksInstall(args[1:])
	case "update":
		return runPacksUpdate(args[1:])
	case "verify":
		return runPacksVerify(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown packs subcommand %q", args[0]))
	}
}

func runPacksAdd(args []string) error {
	fs := flag.NewFlagSet("packs add", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	configPath := fs.String("config", packs.DefaultConfigPath(), "Pack sources config path")
	sourcesDir := fs.String("sources-dir", packs.DefaultSourcesDir(), "Directory holding synced sources")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return errors.New("expected a pack source (git URL, owner/repo, or local path)")
	}

	source := packs.ResolveSource(fs.Args()[0])
	cfg, err := packs.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if _, exists := packs.FindSource(cfg, source.Name); exists {
		return fmt.Errorf("source %q is already registered", source.Name)
	}

	if err := packs.Sync(*sourcesDir, source); err != nil {
		return err
	}

	source.AddedAt = time.Now().UTC()
	cfg.Sources = append(cfg.Sources, source)
	if err := packs.SaveConfig(*configPath, cfg); err != nil {
		return err
	}

	fmt.Printf("added source: %s\n", source.Name)
	listed, err := packs.ListPacks(packs.SourceDir(*sourcesDir, source))
	if err == nil {
		for _, meta := range listed {
			fmt.Printf("  pack: %-20s %s\n", meta.Name, meta.Description)
		}
	}
	return nil
}

func runPacksRemove(args []string) error {
	fs := flag.NewFlagSet("packs remove", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	configPath := fs.String("config", packs.DefaultConfigPath(), "Pack sources config path")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return errors.New("expected a source name")
	}
	name := fs.Args()[0]

	cfg, err := packs.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if !packs.RemoveSource(cfg, name) {
		return fmt.Errorf("unknown source %q", name)
	}
	if err := packs.SaveConfig(*configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("removed source: %s\n", name)
	return nil
}

func runPacksList(args []string) error {
	fs := flag.NewFlagSet("packs list", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	configPath := fs.String("config", packs.DefaultConfigPath(), "Pack sources config path")
	sourcesDir := fs.String("sources-dir", packs.DefaultSourcesDir(), "Directory holding synced sources")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("packs list does not accept positional args")
	}

	cfg, err := packs.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		fmt.Println("no pack sources registered")
		return nil
	}

	for _, source := range cfg.Sources {
		origin := source.URL
		if origin == "" {
			origin = source.Path
		}
		fmt.Printf("%s (%s)\n", source.Name, origin)
		listed, listErr := packs.ListPacks(packs.SourceDir(*sourcesDir, source))
		if listErr != nil {
			fmt.Printf("  warning: %v\n", listErr)
			continue
		}
		if len(listed) == 0 {
			fmt.Println("  no packs")
			continue
		}
		for _, meta := range listed {
			fmt.Printf("  %-20s %-10s %s\n", meta.Name, meta.Version, meta.Description)
		}
	}
	return nil
}

func runPacksInstall(args []string) error {
	fs := flag.NewFlagSet("packs install", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	configPath := fs.String("config", packs.DefaultConfigPath(), "Pack sources config path")
	sourcesDir := fs.String("sources-dir", packs.DefaultSourcesDir(), "Directory holding synced sources")
	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	lockPath := fs.String("lock", packs.DefaultLockPath(), "Pack lockfile path")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return errors.New("expected <source>/<pack> or <pack>")
	}
	sourceName, packName := splitPackRef(fs.Args()[0])

	cfg, err := packs.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	candidates := cfg.Sources
	if sourceName != "" {
		source, ok := packs.FindSource(cfg, sourceName)
		if !ok {
			return fmt.Errorf("unknown source %q", sourceName)
		}
		candidates = []packs.Source{source}
	}

	for _, source := range candidates {
		srcDir := packs.SourceDir(*sourcesDir, source)
		packDir, found := packs.FindPack(srcDir, packName)
		if !found {
			continue
		}

		dir, dirErr := catalog.ResolveWriteDir(*catalogDir)
		if dirErr != nil {
			return dirErr
		}
		installed, installErr := packs.Install(packDir, dir, packName)
		if installErr != nil {
			return installErr
		}

		digest, digestErr := packs.Digest(packDir)
		if digestErr != nil {
			return digestErr
		}
		lock, lockErr := packs.LoadLock(*lockPath)
		if lockErr != nil {
			return lockErr
		}
		packs.UpsertLockedPack(&lock, packs.LockedPack{
			Name:      packName,
			Source:    source.Name,
			SourceURL: source.URL,
			Digest:    digest,
			LockedAt:  time.Now().UTC(),
		})
		if saveErr := packs.SaveLock(*lockPath, lock); saveErr != nil {
			return saveErr
		}

		fmt.Printf("installed pack %s from %s (%d capabilities)\n", packName, source.Name, installed)
		fmt.Printf("digest: %s\n", digest)
		return nil
	}
	return fmt.Errorf("pack %q not found in any registered source", packName)
}

func runPacksUpdate(args []string) error {
	fs := flag.NewFlagSet("packs update", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	configPath := fs.String("config", packs.DefaultConfigPath(), "Pack sources config path")
	sourcesDir := fs.String("sources-dir", packs.DefaultSourcesDir(), "Directory holding synced sources")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := packs.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	only := fs.Args()
	updated := 0
	for _, source := range cfg.Sources {
		if len(only) > 0 && !containsString(only, source.Name) {
			continue
		}
		if syncErr := packs.Sync(*sourcesDir, source); syncErr != nil {
			fmt.Printf("warning: sync %s: %v\n", source.Name, syncErr)
			continue
		}
		fmt.Printf("synced source: %s\n", source.Name)
		updated++
	}
	if updated == 0 {
		return errors.New("no sources synced")
	}
	return nil
}

func runPacksVerify(args []string) error {
	fs := flag.NewFlagSet("packs verify", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	lockPath := fs.String("lock", packs.DefaultLockPath(), "Pack lockfile path")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("packs verify does not accept positional args")
	}

	lock, err := packs.LoadLock(*lockPath)
	if err != nil {
		return err
	}
	if len(lock.Packs) == 0 {
		fmt.Println("no packs locked")
		return nil
	}

	dir, err := catalog.ResolveWriteDir(*catalogDir)
	if err != nil {
		return err
	}
	problems := packs.VerifyInstalled(lock, dir)
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("problem: %s\n", p)
		}
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d pack verification problems", len(problems))}
	}

	fmt.Printf("verified %d packs\n", len(lock.Packs))
	return nil
}

func splitPackRef(ref string) (source, pack string) {
	ref = strings.TrimSpace(ref)
	if idx := strings.IndexByte(ref, '/'); idx > 0 {
		return ref[:idx], ref[idx+1:]
	}
	return "", ref
}

func containsString(in []string, want string) bool {
	for _, v := range in {
		if v == want {
			return true
		}
	}
	return false
}
