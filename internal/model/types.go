package model

import "time"

// Confidence levels for a finding. Direct findings are proven by literal
// syntax; dynamic findings only prove that some capability access happens
// through a computed expression.
const (
	ConfidenceDirect  = "direct"
	ConfidenceDynamic = "dynamic"
)

// Matcher families a finding can originate from.
const (
	FamilyModuleLoad    = "module-load"
	FamilyGlobalMember  = "global-member"
	FamilyDynamicAccess = "dynamic-access"
)

// CapabilityUnknown is the capability name carried by dynamic findings:
// the access is real but cannot be attributed to a specific capability.
const CapabilityUnknown = "unknown"

// Audit statuses, ordered from best to worst.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

type Finding struct {
	Capability string `json:"capability"`
	Confidence string `json:"confidence"`
	Family     string `json:"family"`
	Severity   string `json:"severity,omitempty"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Evidence   string `json:"evidence,omitempty"`
	Message    string `json:"message,omitempty"`

	Suppressed        bool   `json:"suppressed,omitempty"`
	SuppressionReason string `json:"suppression_reason,omitempty"`
	SuppressionSource string `json:"suppression_source,omitempty"`

	// Baseline marks a finding that was already present in the baseline
	// report supplied with --baseline.
	Baseline bool `json:"baseline,omitempty"`

	// Byte offsets of the matched node in the source file. Used to cut the
	// evidence snippet; not part of the report contract.
	StartByte int `json:"-"`
	EndByte   int `json:"-"`
}

// Diagnostic records a recoverable per-node or per-file problem (malformed
// AST node, unparseable file). Diagnostics never abort a run on their own.
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Diagnostic kinds.
const (
	DiagStructural = "structural"
	DiagParse      = "parse"
)

// FileResult is the output of analyzing a single staged file. Findings carry
// positions relative to the staged workspace root.
type FileResult struct {
	Path        string       `json:"path"`
	Status      string       `json:"status"`
	DurationMS  int64        `json:"duration_ms"`
	Findings    []Finding    `json:"findings,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// File analysis statuses.
const (
	FileAnalyzed = "analyzed"
	FileSkipped  = "skipped"
)

// AuditResult is the reconciled outcome for one audited unit. It is built
// once by the verdict engine and never mutated afterwards.
type AuditResult struct {
	Status            string    `json:"status"`
	Violations        []Finding `json:"violations"`
	DynamicWarnings   []Finding `json:"dynamic_warnings"`
	DeclaredButUnused []string  `json:"declared_but_unused"`
}

type ManifestFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type InputManifest struct {
	RootPath        string         `json:"root_path"`
	InputPath       string         `json:"input_path"`
	InputType       string         `json:"input_type"`
	IncludedFiles   int            `json:"included_files"`
	IncludedBytes   int64          `json:"included_bytes"`
	SkippedFiles    int            `json:"skipped_files"`
	SkippedByReason map[string]int `json:"skipped_by_reason"`
	// SecurityRelevantSkipped counts credential and key material left out
	// of the workspace. Surfaced as a run warning so the omission is never
	// silent.
	SecurityRelevantSkipped int            `json:"security_relevant_skipped"`
	Files                   []ManifestFile `json:"files"`
	GeneratedAt             time.Time      `json:"generated_at"`
}

type RunMetadata struct {
	RunID       string    `json:"run_id"`
	ReportGUID  string    `json:"report_guid,omitempty"`
	ToolVersion string    `json:"tool_version,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Workers     int       `json:"workers"`

	ManifestPath         string   `json:"manifest_path,omitempty"`
	ManifestSource       string   `json:"manifest_source,omitempty"`
	DeclaredCapabilities []string `json:"declared_capabilities,omitempty"`

	CatalogCapabilities int      `json:"catalog_capabilities,omitempty"`
	BuiltinCapabilities int      `json:"builtin_capabilities,omitempty"`
	CustomCapabilities  int      `json:"custom_capabilities,omitempty"`
	TrackedGlobals      []string `json:"tracked_globals,omitempty"`
	LoaderNames         []string `json:"loader_names,omitempty"`
	ScopeAware          bool     `json:"scope_aware,omitempty"`

	AnalyzedFiles int `json:"analyzed_files"`
	SkippedFiles  int `json:"skipped_files,omitempty"`

	PolicyPath    string `json:"policy_path,omitempty"`
	PolicyVersion string `json:"policy_version,omitempty"`
	BaselinePath  string `json:"baseline_path,omitempty"`
}

type InputSummary struct {
	InputType     string `json:"input_type"`
	InputPath     string `json:"input_path"`
	WorkspacePath string `json:"workspace_path"`
	ManifestPath  string `json:"manifest_path"`
	IncludedFiles int    `json:"included_files"`
	IncludedBytes int64  `json:"included_bytes"`
	SkippedFiles  int    `json:"skipped_files"`
}

type FileSummary struct {
	Path        string `json:"path"`
	Status      string `json:"status"`
	Findings    int    `json:"findings"`
	Diagnostics int    `json:"diagnostics"`
	DurationMS  int64  `json:"duration_ms"`
}

type AuditReport struct {
	RunMetadata        RunMetadata     `json:"run_metadata"`
	InputSummary       InputSummary    `json:"input_summary"`
	Result             AuditResult     `json:"result"`
	Files              []FileSummary   `json:"files,omitempty"`
	SuppressedFindings []Finding       `json:"suppressed_findings,omitempty"`
	SuppressedCount    int             `json:"suppressed_count,omitempty"`
	Diagnostics        []Diagnostic    `json:"diagnostics,omitempty"`
	CountsBySeverity   map[string]int  `json:"counts_by_severity"`
	CountsByCapability map[string]int  `json:"counts_by_capability"`
	Errors             []string        `json:"errors,omitempty"`
	PolicyDecision     *PolicyDecision `json:"policy_decision,omitempty"`
}

type PolicyGate struct {
	FailOn             string   `json:"fail_on,omitempty"`
	ForbidCapabilities []string `json:"forbid_capabilities,omitempty"`
	RequireManifest    bool     `json:"require_manifest,omitempty"`
	MaxDynamicWarnings int      `json:"max_dynamic_warnings,omitempty"`
	MaxSuppressedRatio float64  `json:"max_suppressed_ratio,omitempty"`
}

type PolicyViolation struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Capability string `json:"capability,omitempty"`
	File       string `json:"file,omitempty"`
	Waived     bool   `json:"waived,omitempty"`
	WaiverID   string `json:"waiver_id,omitempty"`
}

type PolicyDecision struct {
	Path       string            `json:"path,omitempty"`
	APIVersion string            `json:"api_version,omitempty"`
	Passed     bool              `json:"passed"`
	Effective  PolicyGate        `json:"effective"`
	Violations []PolicyViolation `json:"violations,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}
