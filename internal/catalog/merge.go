package catalog

import "fmt"

// Merge overlays custom definitions onto a base set. An overlay definition
// whose name matches a base definition replaces it in place, so base
// declaration order stays stable; unmatched overlay definitions append in
// their given order. Replacements surface as warnings since a custom file
// silently changing a builtin's meaning is worth telling the user about.
func Merge(base, overlay []Definition) ([]Definition, []string) {
	out := make([]Definition, len(base))
	copy(out, base)

	index := make(map[string]int, len(base))
	for i, def := range base {
		index[def.Name] = i
	}

	warnings := make([]string, 0)
	for _, def := range overlay {
		if i, exists := index[def.Name]; exists {
			warnings = append(warnings, fmt.Sprintf(
				"capability %q overrides the %s definition of the same name",
				def.Name, out[i].Source,
			))
			out[i] = def
			continue
		}
		index[def.Name] = len(out)
		out = append(out, def)
	}
	return out, warnings
}
