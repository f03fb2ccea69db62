// Package history records per-epoch training metrics and persists them
// as CSV, mirroring the history.csv a Keras CSVLogger would produce.
package history

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// Record is one epoch of training metrics.
type Record struct {
	Epoch        int     `csv:"epoch"`
	Loss         float64 `csv:"loss"`
	Accuracy     float64 `csv:"accuracy"`
	ValLoss      float64 `csv:"val_loss"`
	ValAccuracy  float64 `csv:"val_accuracy"`
	LearningRate float64 `csv:"lr"`
}

// History accumulates epoch records.
type History struct {
	records []*Record
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// Append adds one epoch record.
func (h *History) Append(r Record) {
	h.records = append(h.records, &r)
}

// Records returns the accumulated records.
func (h *History) Records() []*Record {
	return h.records
}

// Save writes the full history to a CSV file, overwriting it. Called
// after every epoch so a crashed run still leaves its history behind.
func (h *History) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("history: create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&h.records, f); err != nil {
		return fmt.Errorf("history: write %s: %w", path, err)
	}
	return nil
}

// Load reads a history CSV, for resuming or inspection.
func Load(path string) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	defer f.Close()

	var records []*Record
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", path, err)
	}
	return &History{records: records}, nil
}
