package catalog

import (
	"sort"
	"testing"
)

func TestBuiltins_AllDefinitionsValidateAndHaveUniqueNames(t *testing.T) {
	defs := Builtins()
	if len(defs) == 0 {
		t.Fatal("expected at least one builtin definition")
	}

	for _, def := range defs {
		if def.Source != SourceBuiltin {
			t.Fatalf("builtin %q has unexpected source %q", def.Name, def.Source)
		}
		if def.Status != StatusEnabled {
			t.Fatalf("builtin %q expected enabled status, got %q", def.Name, def.Status)
		}
		if err := ValidateDefinition(def); err != nil {
			t.Fatalf("builtin %q failed validation: %v", def.Name, err)
		}
	}
	if err := ValidateUniqueNames(defs); err != nil {
		t.Fatalf("builtin names not unique: %v", err)
	}
}

func TestBuiltins_AreAlreadyNormalized(t *testing.T) {
	// Builtins skip the Normalize step at load time, so the table must be
	// in canonical form.
	for _, def := range Builtins() {
		normalized := NormalizeDefinition(def)
		if normalized.Module != def.Module || normalized.Member != def.Member {
			t.Fatalf("builtin %q changes under normalization", def.Name)
		}
		if len(normalized.Loaders) != len(def.Loaders) || len(normalized.Globals) != len(def.Globals) {
			t.Fatalf("builtin %q lists change under normalization", def.Name)
		}
		if !sort.StringsAreSorted(def.Loaders) {
			t.Fatalf("builtin %q loaders not sorted: %v", def.Name, def.Loaders)
		}
		if !sort.StringsAreSorted(def.Globals) {
			t.Fatalf("builtin %q globals not sorted: %v", def.Name, def.Globals)
		}
	}
}

func TestBuiltins_CoverBothMatcherFamilies(t *testing.T) {
	var moduleLoad, globalMember int
	for _, def := range Builtins() {
		switch def.Family {
		case FamilyModuleLoad:
			moduleLoad++
			if def.Module == "" {
				t.Fatalf("builtin %q missing module", def.Name)
			}
		case FamilyGlobalMember:
			globalMember++
			if def.Member == "" {
				t.Fatalf("builtin %q missing member", def.Name)
			}
		default:
			t.Fatalf("builtin %q has unknown family %q", def.Name, def.Family)
		}
	}
	if moduleLoad == 0 || globalMember == 0 {
		t.Fatalf("expected builtins in both families, got module-load=%d global-member=%d", moduleLoad, globalMember)
	}
}

func TestBuiltins_EvalAndSubprocessAreCritical(t *testing.T) {
	wantCritical := map[string]bool{"eval": true, "child_process": true}
	for _, def := range Builtins() {
		if wantCritical[def.Name] && def.Severity != "critical" {
			t.Fatalf("builtin %q expected critical severity, got %q", def.Name, def.Severity)
		}
	}
}
