package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHistorySaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")

	h := New()
	h.Append(Record{Epoch: 1, Loss: 0.9, Accuracy: 0.5, ValLoss: 1.0, ValAccuracy: 0.45, LearningRate: 0.004})
	h.Append(Record{Epoch: 2, Loss: 0.7, Accuracy: 0.6, ValLoss: 0.8, ValAccuracy: 0.55, LearningRate: 0.004})

	if err := h.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	records := loaded.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Epoch != 1 || records[1].Epoch != 2 {
		t.Errorf("epochs = %d, %d", records[0].Epoch, records[1].Epoch)
	}
	if records[1].Loss != 0.7 || records[1].ValAccuracy != 0.55 {
		t.Errorf("record 2 = %+v", records[1])
	}
}

func TestHistoryCSVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")

	h := New()
	h.Append(Record{Epoch: 1})
	if err := h.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	header := strings.SplitN(string(content), "\n", 2)[0]
	for _, col := range []string{"epoch", "loss", "accuracy", "val_loss", "val_accuracy", "lr"} {
		if !strings.Contains(header, col) {
			t.Errorf("header %q missing column %q", header, col)
		}
	}
}

func TestHistorySaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")

	h := New()
	h.Append(Record{Epoch: 1})
	if err := h.Save(path); err != nil {
		t.Fatal(err)
	}
	h.Append(Record{Epoch: 2})
	if err := h.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Records()) != 2 {
		t.Errorf("got %d records after overwrite, want 2", len(loaded.Records()))
	}
}

func TestHistoryLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
