package exmacro

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/parser"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/vba"
)

// Component names used in warnings.
const (
	ComponentStaging   = "staging"
	ComponentContainer = "container"
	ComponentVBA       = "vba"
	ComponentMiner     = "miner"
	ComponentSheets    = "sheets"
)

// ooxmlExtensions are scanned as zip/XML containers.
var ooxmlExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
}

// supportedExtensions are the extensions at least one step can read.
var supportedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
	".xls":  true,
	".xlsb": true,
}

// Job is the state shared by the stages of one extraction pass.
type Job struct {
	// Path is the staged file.
	Path string
	// FileName is the uploaded name without directories.
	FileName string
	// Ext is the lower-cased extension of FileName.
	Ext     string
	Options Options

	// Structural holds container-certified descriptors, Heuristic the
	// pattern-mined ones. They are merged in that order.
	Structural []models.ControlDescriptor
	Heuristic  []models.ControlDescriptor

	// HasVBAProject is set by the container scan when the package carries
	// xl/vbaProject.bin.
	HasVBAProject bool

	Modules  []models.VbaModule
	VBAText  string
	Warnings []models.Warning
}

// Warn records a non-fatal failure of component.
func (j *Job) Warn(component string, err error) {
	if err == nil {
		return
	}
	j.Options.Logger.Warn().
		Str("component", component).
		Err(NewExtractionError(j.FileName, component, err)).
		Msg("extraction step failed")
	j.Warnings = append(j.Warnings, models.Warning{
		Component: component,
		Message:   err.Error(),
	})
}

// Stage is one extraction step. An error or panic from Run becomes a
// warning; the remaining stages still run.
type Stage struct {
	Name string
	Run  func(ctx context.Context, job *Job) error
}

// Extractor runs extraction stages over staged uploads.
type Extractor struct {
	opts   Options
	stages []Stage
}

// New creates an Extractor. Without stages it uses DefaultStages.
func New(opts Options, stages ...Stage) *Extractor {
	if opts.Mode == "" {
		opts.Mode = ModeStandard
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Extractor{opts: opts, stages: stages}
}

// Extract stages data under fileName's extension, runs every stage, and
// removes the staged file before returning. Only an empty upload or a
// staging failure is returned as an error.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName string) (*models.ExtractionResult, error) {
	fileName = filepath.Base(fileName)
	staged, err := StageUpload(data, fileName, e.opts.TempDir)
	if err != nil {
		return nil, err
	}

	job := &Job{
		Path:     staged.Path,
		FileName: fileName,
		Ext:      strings.ToLower(filepath.Ext(fileName)),
		Options:  e.opts,
	}

	func() {
		defer func() {
			if err := staged.Remove(); err != nil {
				job.Warn(ComponentStaging, fmt.Errorf("remove temporary file: %w", err))
			}
		}()

		for _, stage := range e.stages {
			if err := ctx.Err(); err != nil {
				job.Warn(stage.Name, err)
				return
			}
			job.Warn(stage.Name, e.runStage(ctx, stage, job))
		}
	}()

	if !supportedExtensions[job.Ext] && len(job.Structural)+len(job.Heuristic) == 0 {
		job.Warn(ComponentContainer, fmt.Errorf("%w: %q", ErrUnsupportedFormat, job.Ext))
	}

	return &models.ExtractionResult{
		FileName: fileName,
		Controls: parser.Merge(job.Structural, job.Heuristic),
		Modules:  job.Modules,
		VBAText:  job.VBAText,
		Warnings: job.Warnings,
	}, nil
}

func (e *Extractor) runStage(ctx context.Context, stage Stage, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e.opts.Debug {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return stage.Run(ctx, job)
}

// ExtractFile reads a workbook from disk and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*models.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	return e.Extract(ctx, data, filepath.Base(path))
}

// Extract extracts controls and macros from an Excel file with the default stages.
func Extract(path string, opts Options) (*models.ExtractionResult, error) {
	return New(opts).ExtractFile(context.Background(), path)
}

// DefaultStages returns the container scan, VBA extraction, control mining
// and fallback sheet listing, in that order.
func DefaultStages() []Stage {
	return []Stage{
		{Name: ComponentContainer, Run: scanContainer},
		{Name: ComponentVBA, Run: extractVBA},
		{Name: ComponentMiner, Run: mineControls},
		{Name: ComponentSheets, Run: listSheets},
	}
}

func scanContainer(_ context.Context, job *Job) error {
	if !ooxmlExtensions[job.Ext] {
		return nil
	}
	scan, err := parser.ScanContainer(job.Path, parser.ScanOptions{
		Positions: job.Options.ShouldIncludePositions(),
	})
	if err != nil {
		return err
	}
	for _, problem := range scan.Problems {
		job.Warn(ComponentContainer, problem)
	}
	job.HasVBAProject = scan.HasVBAProject
	job.Structural = append(job.Structural, scan.Controls...)
	return nil
}

func extractVBA(_ context.Context, job *Job) error {
	if !job.Options.ShouldIncludeVBA() {
		return nil
	}
	modules, err := vba.ExtractFile(job.Path)
	job.Modules = modules
	job.VBAText = vba.Text(modules)
	job.Structural = append(job.Structural, vba.FormDescriptors(modules)...)
	if err == nil && job.HasVBAProject && len(modules) == 0 {
		return ErrNoModulesDecoded
	}
	return err
}

func mineControls(_ context.Context, job *Job) error {
	if job.VBAText == "" {
		return nil
	}
	job.Heuristic = append(job.Heuristic, parser.MineControls(job.VBAText)...)
	return nil
}

func listSheets(_ context.Context, job *Job) error {
	if ooxmlExtensions[job.Ext] && parser.HasWorksheets(job.Structural) {
		return nil
	}
	sheets, err := parser.ListSheets(job.Path, parser.WorksheetNames(job.Structural))
	job.Structural = append(job.Structural, sheets...)
	return err
}
