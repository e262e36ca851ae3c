package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$./-]{0,63}$`)

func ValidateDefinition(def Definition) error {
	var errs []string

	if strings.TrimSpace(def.APIVersion) == "" {
		errs = append(errs, "api_version is required")
	} else if strings.TrimSpace(def.APIVersion) != APIVersion {
		errs = append(errs, fmt.Sprintf("api_version must be %q", APIVersion))
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		errs = append(errs, "name is required")
	} else if !namePattern.MatchString(name) {
		errs = append(errs, "name must match ^[a-zA-Z_$][a-zA-Z0-9_$./-]{0,63}$")
	}

	switch def.Family {
	case FamilyModuleLoad:
		if len(def.Loaders) == 0 {
			errs = append(errs, "loaders must contain at least one loader name for family=module-load")
		}
		for i, loader := range def.Loaders {
			if !namePattern.MatchString(loader) {
				errs = append(errs, fmt.Sprintf("loaders[%d] must be a valid identifier", i))
			}
		}
		if strings.TrimSpace(def.Module) == "" {
			errs = append(errs, "module is required for family=module-load")
		}
		if len(def.Globals) > 0 || strings.TrimSpace(def.Member) != "" {
			errs = append(errs, "globals/member are not valid for family=module-load")
		}
	case FamilyGlobalMember:
		if len(def.Globals) == 0 {
			errs = append(errs, "globals must contain at least one identifier for family=global-member")
		}
		for i, global := range def.Globals {
			if !namePattern.MatchString(global) {
				errs = append(errs, fmt.Sprintf("globals[%d] must be a valid identifier", i))
			}
		}
		if strings.TrimSpace(def.Member) == "" {
			errs = append(errs, "member is required for family=global-member")
		}
		if len(def.Loaders) > 0 || strings.TrimSpace(def.Module) != "" {
			errs = append(errs, "loaders/module are not valid for family=global-member")
		}
	default:
		errs = append(errs, "family must be module-load|global-member")
	}

	switch def.Status {
	case StatusEnabled, StatusDisabled:
	default:
		errs = append(errs, "status must be enabled|disabled")
	}

	switch def.Source {
	case SourceBuiltin, SourceCustom, SourcePack:
	default:
		errs = append(errs, "source must be builtin|custom|pack")
	}

	if sev := strings.ToLower(strings.TrimSpace(def.Severity)); sev != "" {
		switch sev {
		case "critical", "high", "medium", "low", "info":
		default:
			errs = append(errs, "severity must be critical|high|medium|low|info")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// NormalizeDefinition fills defaults and canonicalizes list order. Loader
// and global lists are sorted so two definitions that differ only in list
// order produce identical matchers and identical files on disk.
func NormalizeDefinition(def Definition) Definition {
	def.APIVersion = strings.TrimSpace(def.APIVersion)
	if def.APIVersion == "" {
		def.APIVersion = APIVersion
	}

	def.Name = strings.TrimSpace(def.Name)
	def.Title = strings.TrimSpace(def.Title)
	if def.Title == "" {
		def.Title = def.Name
	}

	def.Family = Family(strings.ToLower(strings.TrimSpace(string(def.Family))))

	status := strings.ToLower(strings.TrimSpace(string(def.Status)))
	if status == "" {
		def.Status = StatusEnabled
	} else {
		def.Status = Status(status)
	}

	src := strings.ToLower(strings.TrimSpace(string(def.Source)))
	if src == "" {
		def.Source = SourceCustom
	} else {
		def.Source = Source(src)
	}

	def.Severity = strings.ToLower(strings.TrimSpace(def.Severity))
	def.Description = strings.TrimSpace(def.Description)
	def.Pack = strings.TrimSpace(def.Pack)

	def.Module = strings.TrimSpace(def.Module)
	def.Member = strings.TrimSpace(def.Member)

	switch def.Family {
	case FamilyModuleLoad:
		def.Loaders = sanitizeNames(def.Loaders)
		if len(def.Loaders) == 0 {
			def.Loaders = DefaultLoaders()
		}
		if def.Module == "" {
			def.Module = def.Name
		}
	case FamilyGlobalMember:
		def.Globals = sanitizeNames(def.Globals)
		if len(def.Globals) == 0 {
			def.Globals = DefaultGlobals()
		}
		if def.Member == "" {
			def.Member = def.Name
		}
	}

	return def
}

// ValidateUniqueNames rejects a definition set where two definitions claim
// the same capability name, regardless of family or source.
func ValidateUniqueNames(defs []Definition) error {
	seen := make(map[string]int, len(defs))
	for i, def := range defs {
		if first, ok := seen[def.Name]; ok {
			return fmt.Errorf("duplicate capability %q (definitions %d and %d)", def.Name, first, i)
		}
		seen[def.Name] = i
	}
	return nil
}

func sanitizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
