package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vector"
)

// record is one document of a records file. Either weights (sparse, needs
// dim) or dense is set.
type record struct {
	Dataset  string          `yaml:"dataset"`
	ID       int64           `yaml:"id"`
	Content  string          `yaml:"content"`
	Metadata string          `yaml:"metadata"`
	Dim      int             `yaml:"dim"`
	Weights  map[int]float32 `yaml:"weights"`
	Dense    []float32       `yaml:"dense"`
}

type recordsFile struct {
	Dataset string   `yaml:"dataset"` // default for records without one
	Records []record `yaml:"records"`
}

func readRecords(path string) ([]vector.Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read records %s: %w", path, err)
	}
	var file recordsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse records %s: %w", path, err)
	}
	docs := make([]vector.Document, 0, len(file.Records))
	for i, r := range file.Records {
		dataset := r.Dataset
		if dataset == "" {
			dataset = file.Dataset
		}
		if dataset == "" {
			return nil, fmt.Errorf("record %d (id %d): dataset is required", i, r.ID)
		}
		var vec similarity.Vector
		if r.Dense != nil {
			vec = similarity.Dense(r.Dense)
		} else if vec, err = similarity.FromMap(r.Dim, r.Weights); err != nil {
			return nil, fmt.Errorf("record %d (id %d): %w", i, r.ID, err)
		}
		docs = append(docs, vector.Document{Dataset: dataset, ID: r.ID, Content: r.Content, Metadata: r.Metadata, Vector: vec})
	}
	return docs, nil
}
