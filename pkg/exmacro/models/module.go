package models

// ModuleKind is the best-effort classification of a VBA code module.
type ModuleKind string

const (
	ModuleStandard ModuleKind = "Module"
	ModuleClass    ModuleKind = "Class"
	ModuleForm     ModuleKind = "Form"
	ModuleDocument ModuleKind = "Document"
)

// Extension returns the conventional export file extension for the kind.
func (k ModuleKind) Extension() string {
	switch k {
	case ModuleClass, ModuleDocument:
		return ".cls"
	case ModuleForm:
		return ".frm"
	default:
		return ".bas"
	}
}

// VbaModule represents one extracted macro source unit.
type VbaModule struct {
	// Name is the module name as declared in the VBA project.
	Name string `json:"name"`
	// StreamPath is the stream location inside the OLE container (e.g. "VBA/Module1").
	StreamPath string `json:"stream_path"`
	// Container is the OLE file or archive part holding the project (e.g. "xl/vbaProject.bin").
	Container string `json:"container"`
	// Code is the decompressed source text; empty when the module has no lines.
	Code string `json:"code"`
	// Kind is the inferred module kind.
	Kind ModuleKind `json:"kind"`
}

// FileName returns the module name with its export extension.
func (m VbaModule) FileName() string {
	return m.Name + m.Kind.Extension()
}
