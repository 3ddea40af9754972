package sbom

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ToolName is recorded in the document metadata.
const ToolName = "lockscan"

// Document is a CycloneDX 1.4 SBOM.
type Document struct {
	BOMFormat    string      `json:"bomFormat"`
	SpecVersion  string      `json:"specVersion"`
	SerialNumber string      `json:"serialNumber,omitempty"`
	Version      int         `json:"version"`
	Metadata     Metadata    `json:"metadata"`
	Components   []Component `json:"components"`
}

// Metadata is the CycloneDX metadata block.
type Metadata struct {
	Timestamp string `json:"timestamp,omitempty"`
	Tools     []Tool `json:"tools,omitempty"`
}

// Tool identifies the generator.
type Tool struct {
	Vendor  string `json:"vendor,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// New builds a document around the merged components.
func New(components []Component, toolVersion string) *Document {
	merged := MergeComponents(components)
	if merged == nil {
		merged = []Component{}
	}
	return &Document{
		BOMFormat:    "CycloneDX",
		SpecVersion:  "1.4",
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Version:      1,
		Metadata: Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Tools:     []Tool{{Name: ToolName, Version: toolVersion}},
		},
		Components: merged,
	}
}

// Merge combines several documents into a new one.
func Merge(toolVersion string, docs ...*Document) *Document {
	var all []Component
	for _, d := range docs {
		all = append(all, d.Components...)
	}
	return New(all, toolVersion)
}

// Encode writes the document as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Decode reads a document and checks that it is CycloneDX.
func Decode(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding SBOM: %w", err)
	}
	if d.BOMFormat != "CycloneDX" {
		return nil, fmt.Errorf("not a CycloneDX SBOM (bomFormat %q)", d.BOMFormat)
	}
	return &d, nil
}

// Compressed reports whether path is written with zstd.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// WriteFile writes the document to path, zstd-compressed for *.zst.
func WriteFile(path string, d *Document) (err error) {
	f, err := os.Create(path) //nolint:gosec // output path chosen by the user
	if err != nil {
		return fmt.Errorf("creating SBOM: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing SBOM: %w", cerr)
		}
	}()

	if !Compressed(path) {
		return d.Encode(f)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := d.Encode(zw); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// ReadFile reads a document written by WriteFile.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path) //nolint:gosec // input path chosen by the user
	if err != nil {
		return nil, fmt.Errorf("opening SBOM: %w", err)
	}
	defer func() { _ = f.Close() }()

	if !Compressed(path) {
		return Decode(f)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()
	return Decode(zr)
}
