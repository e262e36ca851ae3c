package catalog

// DefaultLoaders returns the loader callee names assumed when a module-load
// definition does not list its own. Dynamic `import(...)` parses to a callee
// named "import" in the tree-sitter grammar, so both spellings are covered.
func DefaultLoaders() []string {
	return []string{"import", "require"}
}

// DefaultGlobals returns the global object identifiers assumed when a
// global-member definition does not list its own.
func DefaultGlobals() []string {
	return []string{"global", "globalThis", "self", "window"}
}

func Builtins() []Definition {
	return []Definition{
		{
			APIVersion: APIVersion,
			Name:       "fs",
			Title:      "Filesystem Access",
			Family:     FamilyModuleLoad,
			Status:     StatusEnabled,
			Source:     SourceBuiltin,
			Severity:   "high",
			Loaders:    DefaultLoaders(),
			Module:     "fs",
			Description: "Loading the fs module grants read/write access to the host " +
				"filesystem, including paths outside the package's own tree.",
		},
		{
			APIVersion: APIVersion,
			Name:       "child_process",
			Title:      "Subprocess Execution",
			Family:     FamilyModuleLoad,
			Status:     StatusEnabled,
			Source:     SourceBuiltin,
			Severity:   "critical",
			Loaders:    DefaultLoaders(),
			Module:     "child_process",
			Description: "Loading child_process allows spawning arbitrary host commands " +
				"with the privileges of the running process.",
		},
		{
			APIVersion: APIVersion,
			Name:       "net",
			Title:      "Raw Network Sockets",
			Family:     FamilyModuleLoad,
			Status:     StatusEnabled,
			Source:     SourceBuiltin,
			Severity:   "high",
			Loaders:    DefaultLoaders(),
			Module:     "net",
			Description: "Loading net allows opening raw TCP/IPC sockets, bypassing any " +
				"HTTP-layer egress controls.",
		},
		{
			APIVersion:  APIVersion,
			Name:        "http",
			Title:       "Outbound HTTP",
			Family:      FamilyModuleLoad,
			Status:      StatusEnabled,
			Source:      SourceBuiltin,
			Severity:    "medium",
			Loaders:     DefaultLoaders(),
			Module:      "http",
			Description: "Loading http allows issuing requests and running servers.",
		},
		{
			APIVersion: APIVersion,
			Name:       "dns",
			Title:      "DNS Resolution",
			Family:     FamilyModuleLoad,
			Status:     StatusEnabled,
			Source:     SourceBuiltin,
			Severity:   "medium",
			Loaders:    DefaultLoaders(),
			Module:     "dns",
			Description: "Loading dns allows name resolution, a common exfiltration " +
				"channel when other egress is blocked.",
		},
		{
			APIVersion: APIVersion,
			Name:       "XMLHttpRequest",
			Title:      "XMLHttpRequest",
			Family:     FamilyGlobalMember,
			Status:     StatusEnabled,
			Source:     SourceBuiltin,
			Severity:   "medium",
			Globals:    DefaultGlobals(),
			Member:     "XMLHttpRequest",
			Description: "Referencing the XMLHttpRequest constructor enables network " +
				"requests from browser-like environments.",
		},
		{
			APIVersion:  APIVersion,
			Name:        "fetch",
			Title:       "Fetch API",
			Family:      FamilyGlobalMember,
			Status:      StatusEnabled,
			Source:      SourceBuiltin,
			Severity:    "medium",
			Globals:     DefaultGlobals(),
			Member:      "fetch",
			Description: "Referencing fetch enables outbound network requests.",
		},
		{
			APIVersion:  APIVersion,
			Name:        "WebSocket",
			Title:       "WebSocket",
			Family:      FamilyGlobalMember,
			Status:      StatusEnabled,
			Source:      SourceBuiltin,
			Severity:    "medium",
			Globals:     DefaultGlobals(),
			Member:      "WebSocket",
			Description: "Referencing the WebSocket constructor enables persistent " +
				"bidirectional network channels.",
		},
		{
			APIVersion:  APIVersion,
			Name:        "localStorage",
			Title:       "Local Storage",
			Family:      FamilyGlobalMember,
			Status:      StatusEnabled,
			Source:      SourceBuiltin,
			Severity:    "low",
			Globals:     DefaultGlobals(),
			Member:      "localStorage",
			Description: "Referencing localStorage enables persistent state on the host.",
		},
		{
			APIVersion: APIVersion,
			Name:       "eval",
			Title:      "Dynamic Code Evaluation",
			Family:     FamilyGlobalMember,
			Status:     StatusEnabled,
			Source:     SourceBuiltin,
			Severity:   "critical",
			Globals:    DefaultGlobals(),
			Member:     "eval",
			Description: "Referencing eval through a global enables execution of " +
				"runtime-assembled code that static analysis cannot see.",
		},
		{
			APIVersion:  APIVersion,
			Name:        "cookie",
			Title:       "Document Cookies",
			Family:      FamilyGlobalMember,
			Status:      StatusEnabled,
			Source:      SourceBuiltin,
			Severity:    "medium",
			Globals:     []string{"document"},
			Member:      "cookie",
			Description: "Referencing document.cookie enables session token access.",
		},
	}
}
