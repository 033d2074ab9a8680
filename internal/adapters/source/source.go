// Package source declares the ports through which raw benchmark records
// enter the engine, plus a file-backed record source that reads the
// scrape layer's JSON handoff.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchwatch/benchwatch/internal/domain/model"
	"github.com/benchwatch/benchwatch/internal/domain/normalize"
)

// Sentinel kinds for source errors.
var (
	ErrNotScraped = errors.New("no scraped data for model")
	ErrBadPayload = errors.New("malformed scrape payload")
)

// RecordSource supplies reported records, typically scraped from model
// pages. Records stay untyped maps until normalized.
type RecordSource interface {
	FetchRawRecords(ctx context.Context, modelID string) ([]normalize.RawRecord, error)
}

// MeasurementSource runs an evaluation suite against a model and returns
// the measured raw records. Implemented by the evaluation-harness layer;
// the engine only depends on this contract.
type MeasurementSource interface {
	RunBenchmark(ctx context.Context, modelID, taskID string, cond model.Condition) ([]normalize.RawRecord, error)
}

// scrapePayload mirrors the JSON files the scrape layer writes, one file
// per model.
type scrapePayload struct {
	ModelID    string `json:"model_id"`
	ScrapedAt  string `json:"scraped_at"`
	Benchmarks []struct {
		Name     string `json:"name"`
		Metric   string `json:"metric,omitempty"`
		Value    any    `json:"value"`
		Dataset  string `json:"dataset,omitempty"`
		NumShots any    `json:"num_shots,omitempty"`
	} `json:"benchmarks"`
}

// FileSource reads scraped model data from a directory of JSON files
// named after the model id (path separators flattened to underscores).
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource over dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// FetchRawRecords loads the model's scrape file and flattens each
// benchmark entry into a reported raw record.
func (s *FileSource) FetchRawRecords(ctx context.Context, modelID string) ([]normalize.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, strings.ReplaceAll(modelID, "/", "_")+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotScraped, modelID)
	}
	if err != nil {
		return nil, fmt.Errorf("read scrape file %s: %w", path, err)
	}

	var payload scrapePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, path, err)
	}
	if payload.ModelID == "" {
		payload.ModelID = modelID
	}

	records := make([]normalize.RawRecord, 0, len(payload.Benchmarks))
	for _, b := range payload.Benchmarks {
		raw := normalize.RawRecord{
			"model_id":  payload.ModelID,
			"benchmark": b.Name,
			"value":     b.Value,
			"source":    string(model.SourceReported),
		}
		if b.Metric != "" {
			raw["metric"] = b.Metric
		}
		if b.Dataset != "" {
			raw["dataset"] = b.Dataset
		}
		if b.NumShots != nil {
			raw["num_shots"] = b.NumShots
		}
		if payload.ScrapedAt != "" {
			raw["observed_at"] = payload.ScrapedAt
		}
		records = append(records, raw)
	}
	return records, nil
}
