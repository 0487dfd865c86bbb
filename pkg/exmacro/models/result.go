package models

// Warning is a non-fatal problem reported by one extraction step.
type Warning struct {
	// Component names the step that failed (e.g. "container", "vba").
	Component string `json:"component"`
	// Message is the human-readable description.
	Message string `json:"message"`
}

// ExtractionResult is the outcome of one extraction pass over an uploaded workbook.
type ExtractionResult struct {
	// FileName is the uploaded file name (no path).
	FileName string `json:"file_name"`
	// Controls is the merged, deduplicated descriptor list.
	Controls []ControlDescriptor `json:"controls"`
	// Modules lists the extracted VBA modules.
	Modules []VbaModule `json:"modules,omitempty"`
	// VBAText is the concatenated VBA source with per-module origin headers.
	VBAText string `json:"vba_text,omitempty"`
	// Warnings collects non-fatal failures.
	Warnings []Warning `json:"warnings,omitempty"`
}

// HasVBA reports whether any VBA source was extracted.
func (r *ExtractionResult) HasVBA() bool {
	return r.VBAText != ""
}

// Module returns the module with the given name.
func (r *ExtractionResult) Module(name string) (VbaModule, bool) {
	for _, m := range r.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return VbaModule{}, false
}
