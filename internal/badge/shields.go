package badge

import "encoding/json"

type shieldsEndpoint struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

// ShieldsJSON returns shields.io endpoint JSON for the given grade. An empty
// label falls back to DefaultLabel.
func ShieldsJSON(label, grade, color string) string {
	if label == "" {
		label = DefaultLabel
	}
	b, _ := json.MarshalIndent(shieldsEndpoint{
		SchemaVersion: 1,
		Label:         label,
		Message:       grade,
		Color:         color,
	}, "", "  ")
	return string(b)
}
