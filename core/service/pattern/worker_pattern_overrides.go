package pattern

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides extends the built-in vocabularies. Entries are added, never removed.
type Overrides struct {
	Keywords            []string `yaml:"keywords"`
	StrongSignals       []string `yaml:"strong_signals"`
	SenderBlocklist     []string `yaml:"sender_blocklist"`
	DomainBlocklist     []string `yaml:"domain_blocklist"`
	SubjectBlockPhrases []string `yaml:"subject_block_phrases"`
	Stopwords           []string `yaml:"stopwords"`
	MasterParts         []string `yaml:"master_parts"`
}

// LoadOverrides reads a YAML override file. A missing file yields empty overrides.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	if path == "" {
		return o, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return o, nil
		}
		return o, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &o); err != nil {
		return o, fmt.Errorf("parsing %s: %w", path, err)
	}
	return o, nil
}

// masterColumns are header names recognized as the part number column.
var masterColumns = map[string]struct{}{
	"partnumber": {}, "part_number": {}, "part number": {}, "pn": {}, "part": {}, "item": {}, "sku": {},
}

// LoadMasterParts reads a CSV master list. The part number column is picked by
// header name, falling back to the first column. A missing file yields nil.
func LoadMasterParts(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadMasterParts(f)
}

// ReadMasterParts parses CSV master part data from r.
func ReadMasterParts(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading master header: %w", err)
	}

	col := -1
	for i, h := range header {
		if _, ok := masterColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			col = i
			break
		}
	}

	seen := make(map[string]struct{})
	var parts []string
	add := func(v string) {
		n := NormalizePartNumber(v)
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		parts = append(parts, n)
	}

	// Without a recognized header the first row is data.
	if col < 0 {
		col = 0
		if len(header) > 0 {
			add(header[0])
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading master rows: %w", err)
		}
		if col < len(rec) {
			add(rec[col])
		}
	}
	return parts, nil
}

// Load builds a library from an optional YAML override file and an optional
// CSV master part list.
func Load(overridePath, masterPath string) (*Library, error) {
	o, err := LoadOverrides(overridePath)
	if err != nil {
		return nil, err
	}
	parts, err := LoadMasterParts(masterPath)
	if err != nil {
		return nil, err
	}
	o.MasterParts = append(o.MasterParts, parts...)
	return New(o)
}
