package version

import "testing"

func TestVersionDefault(t *testing.T) {
	// Report metadata and history rows embed this value; a build that
	// clears it would produce unattributable runs.
	if Version == "" {
		t.Fatal("Version must not be empty")
	}
	if Version != "dev" {
		t.Fatalf("expected default Version to be %q, got %q", "dev", Version)
	}
}
