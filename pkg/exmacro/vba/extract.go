package vba

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/richardlehane/mscfb"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/parser"
)

// ErrNotContainer is returned for files that are neither a zip package nor an
// OLE compound file.
var ErrNotContainer = errors.New("file is not an OLE or zip container")

// ExtractFile returns the VBA modules of a workbook file. A workbook without
// a VBA project yields no modules and no error. On a parser failure the
// modules decoded so far are returned together with the error.
func ExtractFile(filePath string) (modules []models.VbaModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vba parser panic: %v", r)
		}
	}()

	format, err := parser.DetectFormat(filePath)
	if err != nil {
		if errors.Is(err, parser.ErrUnknownFormat) {
			return nil, ErrNotContainer
		}
		return nil, err
	}

	switch format {
	case parser.FormatOLE:
		f, err := os.Open(filePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return Open(f, filepath.Base(filePath))
	case parser.FormatOOXML, parser.FormatXLSB:
		return extractFromZip(filePath)
	}
	return nil, ErrNotContainer
}

func extractFromZip(filePath string) ([]models.VbaModule, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), "vbaproject.bin") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return Open(bytes.NewReader(data), f.Name)
	}
	return nil, nil
}

// oleStream is one stream of a compound file.
type oleStream struct {
	path string
	data []byte
}

// Open reads the VBA project of an OLE compound file. container names the
// file or package part for the origin headers.
func Open(ra io.ReaderAt, container string) ([]models.VbaModule, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}

	streams := make(map[string]oleStream)
	for {
		entry, nextErr := doc.Next()
		if nextErr != nil {
			if nextErr != io.EOF {
				return nil, fmt.Errorf("read compound file: %w", nextErr)
			}
			break
		}
		if entry.Size == 0 {
			continue
		}
		data, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read stream %s: %w", entry.Name, err)
		}
		p := strings.Join(append(append([]string{}, entry.Path...), entry.Name), "/")
		streams[strings.ToLower(p)] = oleStream{path: p, data: data}
	}

	return readProject(streams, container)
}

// readProject locates the VBA storage and decodes its modules.
func readProject(streams map[string]oleStream, container string) ([]models.VbaModule, error) {
	dirKey := ""
	for key := range streams {
		if key == "vba/dir" || strings.HasSuffix(key, "/vba/dir") {
			if dirKey == "" || len(key) < len(dirKey) {
				dirKey = key
			}
		}
	}
	if dirKey == "" {
		return nil, nil
	}
	dirStream := streams[dirKey]
	root := strings.TrimSuffix(dirKey, "vba/dir")
	vbaPath := strings.TrimSuffix(dirStream.path, "dir")

	dirData, err := Decompress(dirStream.data)
	if err != nil {
		return nil, fmt.Errorf("decompress dir stream: %w", err)
	}
	info, err := parseDir(dirData)
	if err != nil && info == nil {
		return nil, err
	}
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}

	declared := map[string]models.ModuleKind{}
	if project, ok := streams[root+"project"]; ok {
		declared = parseProjectStream(normalizeNewlines(decodeCodePage(project.data, info.codePage)))
	}

	var modules []models.VbaModule
	for _, rec := range info.modules {
		stream, ok := streams[root+"vba/"+strings.ToLower(rec.streamName)]
		if !ok {
			errs = append(errs, fmt.Errorf("module %s: stream %s not found", rec.name, rec.streamName))
			continue
		}
		if int(rec.offset) > len(stream.data) {
			errs = append(errs, fmt.Errorf("module %s: offset %d beyond stream size %d", rec.name, rec.offset, len(stream.data)))
			continue
		}

		var code string
		if int(rec.offset) < len(stream.data) {
			raw, err := Decompress(stream.data[rec.offset:])
			if err != nil {
				errs = append(errs, fmt.Errorf("module %s: %w", rec.name, err))
			}
			code = normalizeNewlines(decodeCodePage(raw, info.codePage))
		}

		modules = append(modules, models.VbaModule{
			Name:       rec.name,
			StreamPath: vbaPath + rec.streamName,
			Container:  container,
			Code:       code,
			Kind:       classifyModule(rec, code, declared),
		})
	}

	return modules, errors.Join(errs...)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Text concatenates module sources, each preceded by a header naming its
// origin so that module boundaries stay locatable.
func Text(modules []models.VbaModule) string {
	var sb strings.Builder
	for _, m := range modules {
		fmt.Fprintf(&sb, "%s%s (Stream: %s, OLE File: %s) ---\n%s\n\n",
			parser.SourceHeaderPrefix, m.FileName(), m.StreamPath, m.Container, m.Code)
	}
	return sb.String()
}

// FormDescriptors reports the UserForms declared by the project metadata as
// structural descriptors.
func FormDescriptors(modules []models.VbaModule) []models.ControlDescriptor {
	var result []models.ControlDescriptor
	for _, m := range modules {
		if m.Kind != models.ModuleForm {
			continue
		}
		result = append(result, models.ControlDescriptor{
			Name:       m.Name,
			Kind:       models.KindVBAUserForm,
			Source:     models.SourceVBAProject,
			Confidence: models.ConfidenceStructural,
			Properties: models.Properties{
				"name":        m.Name,
				"stream_path": m.StreamPath,
				"container":   m.Container,
			},
		})
	}
	return result
}
