package cmd

import (
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/katiefenn/warden/internal/catalog"
	"gopkg.in/yaml.v3"
)

func runCatalog(args []string) error {
	if len(args) == 0 {
		return usageError("usage: warden catalog <add|list|show|validate|enable|disable> [flags]")
	}

	switch args[0] {
	case "add":
		return runCatalogAdd(args[1:])
	case "list":
		return runCatalogList(args[1:])
	case "show":
		return runCatalogShow(args[1:])
	case "validate":
		return runCatalogValidate(args[1:])
	case "enable":
		return runCatalogStatus(args[1:], catalog.StatusEnabled)
	case "disable":
		return runCatalogStatus(args[1:], catalog.StatusDisabled)
	default:
		return usageError(fmt.Sprintf("unknown catalog subcommand %q", args[0]))
	}
}

func runCatalogAdd(args []string) error {
	fs := flag.NewFlagSet("catalog add", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	name := fs.String("name", "", "Capability name (e.g. fs, net, child-process)")
	title := fs.String("title", "", "Human-readable title")
	family := fs.String("family", "", "Matcher family: module-load|global-member")
	severity := fs.String("severity", "", "Severity: critical|high|medium|low|info")
	description := fs.String("description", "", "Capability description")
	module := fs.String("module", "", "Module specifier for module-load (e.g. child_process)")
	member := fs.String("member", "", "Member name for global-member (e.g. eval)")
	overwrite := fs.Bool("overwrite", false, "Replace an existing definition file")

	var loaders listFlag
	var globals listFlag
	fs.Var(&loaders, "loader", "Loader callee name (repeatable or comma-separated)")
	fs.Var(&globals, "global", "Tracked global identifier (repeatable or comma-separated)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("catalog add does not accept positional args")
	}
	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	if strings.TrimSpace(*family) == "" {
		return errors.New("--family is required")
	}

	dir, err := catalog.ResolveWriteDir(*catalogDir)
	if err != nil {
		return err
	}

	def := catalog.Definition{
		APIVersion:  catalog.APIVersion,
		Name:        strings.TrimSpace(*name),
		Title:       strings.TrimSpace(*title),
		Family:      catalog.Family(strings.TrimSpace(*family)),
		Status:      catalog.StatusEnabled,
		Source:      catalog.SourceCustom,
		Severity:    strings.TrimSpace(*severity),
		Description: strings.TrimSpace(*description),
		Loaders:     loaders.Values(),
		Module:      strings.TrimSpace(*module),
		Globals:     globals.Values(),
		Member:      strings.TrimSpace(*member),
	}

	path, err := catalog.WriteDefinition(dir, def, *overwrite)
	if err != nil {
		return err
	}

	fmt.Printf("created capability: %s\n", path)
	return nil
}

func runCatalogList(args []string) error {
	fs := flag.NewFlagSet("catalog list", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	statusFilter := fs.String("status", "", "status filter: enabled|disabled")
	sourceFilter := fs.String("source", "", "source filter: builtin|custom|pack")
	includeBuiltins := fs.Bool("include-builtins", true, "Include built-in capabilities")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("catalog list does not accept positional args")
	}

	defs, warnings, err := loadAllDefinitions(*catalogDir, *includeBuiltins)
	if err != nil {
		return err
	}

	statusValue := strings.ToLower(strings.TrimSpace(*statusFilter))
	sourceValue := strings.ToLower(strings.TrimSpace(*sourceFilter))
	filtered := make([]catalog.Definition, 0, len(defs))
	for _, def := range defs {
		if statusValue != "" && string(def.Status) != statusValue {
			continue
		}
		if sourceValue != "" && string(def.Source) != sourceValue {
			continue
		}
		filtered = append(filtered, catalog.NormalizeDefinition(def))
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	if len(filtered) == 0 {
		fmt.Println("no capabilities found")
	} else {
		for _, def := range filtered {
			fmt.Printf("%-20s %-14s %-9s %-8s %s\n", def.Name, def.Family, def.Status, def.Source, def.Title)
		}
	}

	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func runCatalogShow(args []string) error {
	fs := flag.NewFlagSet("catalog show", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return errors.New("expected capability name")
	}
	name := fs.Args()[0]

	defs, _, err := loadAllDefinitions(*catalogDir, true)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.Name == name {
			b, marshalErr := yaml.Marshal(catalog.NormalizeDefinition(def))
			if marshalErr != nil {
				return fmt.Errorf("render capability: %w", marshalErr)
			}
			fmt.Print(string(b))
			return nil
		}
	}
	return fmt.Errorf("unknown capability %q", name)
}

func runCatalogValidate(args []string) error {
	fs := flag.NewFlagSet("catalog validate", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	includeBuiltins := fs.Bool("include-builtins", true, "Include built-ins in duplicate-name validation")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("catalog validate does not accept positional args")
	}

	dirs, err := catalog.ResolveReadDirs(*catalogDir)
	if err != nil {
		return err
	}
	customDefs, warnings, err := catalog.LoadCustomDirs(dirs)
	if err != nil {
		return err
	}
	if len(warnings) > 0 {
		return fmt.Errorf("invalid capability definitions:\n- %s", strings.Join(warnings, "\n- "))
	}

	defs := customDefs
	if *includeBuiltins {
		defs = append(catalog.Builtins(), customDefs...)
	}
	for _, def := range defs {
		if err := catalog.ValidateDefinition(def); err != nil {
			return fmt.Errorf("invalid capability %q: %w", def.Name, err)
		}
	}
	if err := catalog.ValidateUniqueNames(defs); err != nil {
		return err
	}

	fmt.Printf("validated %d capabilities\n", len(defs))
	return nil
}

func runCatalogStatus(args []string, status catalog.Status) error {
	fs := flag.NewFlagSet("catalog status", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	catalogDir := fs.String("catalog-dir", "", "Catalog directory (default ~/.warden/catalog)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return errors.New("expected capability name")
	}
	name := fs.Args()[0]

	dirs, err := catalog.ResolveReadDirs(*catalogDir)
	if err != nil {
		return err
	}
	path, err := catalog.UpdateStatusInDirs(dirs, name, status)
	if err != nil {
		return err
	}

	fmt.Printf("updated %s -> %s\n", name, status)
	fmt.Printf("file: %s\n", path)
	return nil
}

func loadAllDefinitions(catalogDir string, includeBuiltins bool) ([]catalog.Definition, []string, error) {
	dirs, err := catalog.ResolveReadDirs(catalogDir)
	if err != nil {
		return nil, nil, err
	}
	custom, warnings, err := catalog.LoadCustomDirs(dirs)
	if err != nil {
		return nil, nil, err
	}
	if !includeBuiltins {
		return custom, warnings, nil
	}
	merged, mergeWarnings := catalog.Merge(catalog.Builtins(), custom)
	return merged, append(warnings, mergeWarnings...), nil
}
