package dataset

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/perceiver/internal/backend/cpu"
	"github.com/born-ml/perceiver/internal/tensor"
)

// writeIDXImages writes a minimal IDX image file for tests.
func writeIDXImages(t *testing.T, path string, images [][]byte, height, width int) {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []uint32{idxImagesMagic, uint32(len(images)), uint32(height), uint32(width)} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	for _, img := range images {
		buf.Write(img)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeIDXLabels(t *testing.T, path string, labels []byte) {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []uint32{idxLabelsMagic, uint32(len(labels))} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	buf.Write(labels)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeSplit writes a matching image/label pair under dir with the
// given prefix.
func writeSplit(t *testing.T, dir, prefix string, images [][]byte, labels []byte, height, width int) {
	t.Helper()
	writeIDXImages(t, filepath.Join(dir, prefix+"-images-idx3-ubyte"), images, height, width)
	writeIDXLabels(t, filepath.Join(dir, prefix+"-labels-idx1-ubyte"), labels)
}

// IDX reader

func TestReadIDXImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imgs")
	writeIDXImages(t, path, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, 2, 2)

	images, height, width, err := ReadIDXImages(path)
	if err != nil {
		t.Fatalf("ReadIDXImages failed: %v", err)
	}
	if height != 2 || width != 2 {
		t.Errorf("size = %dx%d, want 2x2", height, width)
	}
	if len(images) != 2 || images[1][3] != 8 {
		t.Errorf("unexpected image data: %v", images)
	}
}

func TestReadIDXImagesBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imgs")
	if err := os.WriteFile(path, []byte{0, 0, 0, 1, 0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := ReadIDXImages(path); err == nil {
		t.Error("expected error for wrong magic number")
	}
}

func TestReadIDXImagesTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imgs")
	var buf bytes.Buffer
	for _, v := range []uint32{idxImagesMagic, 2, 2, 2} {
		binary.Write(&buf, binary.BigEndian, v) //nolint:errcheck
	}
	buf.Write([]byte{1, 2, 3}) // 8 pixels promised, 3 delivered
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := ReadIDXImages(path); err == nil {
		t.Error("expected error for truncated pixel data")
	}
}

func TestReadIDXLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels")
	writeIDXLabels(t, path, []byte{0, 1, 1, 0})

	labels, err := ReadIDXLabels(path)
	if err != nil {
		t.Fatalf("ReadIDXLabels failed: %v", err)
	}
	if len(labels) != 4 || labels[1] != 1 {
		t.Errorf("labels = %v", labels)
	}
}

// Standardization

func TestStandardizeMeanAndVariance(t *testing.T) {
	raw := []byte{0, 50, 100, 150, 200, 250}
	result := Standardize(raw)

	var sum, sumSq float64
	for _, v := range result {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(result))
	mean := sum / n
	variance := sumSq/n - mean*mean

	if math.Abs(mean) > 1e-5 {
		t.Errorf("mean = %v, want 0", mean)
	}
	if math.Abs(variance-1) > 1e-4 {
		t.Errorf("variance = %v, want 1", variance)
	}
}

func TestStandardizeConstantImage(t *testing.T) {
	raw := []byte{128, 128, 128, 128}
	result := Standardize(raw)

	for i, v := range result {
		if v != 0 {
			t.Errorf("constant image pixel %d = %v, want 0", i, v)
		}
	}
}

// Load

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, "train",
		[][]byte{{0, 255, 0, 255}, {255, 0, 255, 0}},
		[]byte{0, 1}, 2, 2)

	d, err := Load(dir, "train", 2)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if d.Len() != 2 || d.Height != 2 || d.Width != 2 || d.Channels != 1 {
		t.Errorf("dataset = %+v", d)
	}
	if d.Labels[0] != 0 || d.Labels[1] != 1 {
		t.Errorf("labels = %v", d.Labels)
	}
}

func TestLoadRejectsOutOfRangeLabel(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, "train", [][]byte{{1, 2, 3, 4}}, []byte{5}, 2, 2)

	if _, err := Load(dir, "train", 2); err == nil {
		t.Error("expected error for out-of-range label")
	}
}

func TestLoadRejectsCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, "train", [][]byte{{1, 2, 3, 4}}, []byte{0, 1}, 2, 2)

	if _, err := Load(dir, "train", 2); err == nil {
		t.Error("expected error for image/label count mismatch")
	}
}

func TestLoadRequiresTwoClasses(t *testing.T) {
	if _, err := Load(t.TempDir(), "train", 1); err == nil {
		t.Error("expected error for numClasses < 2")
	}
}

// Augmentation

func TestHFlipConcat(t *testing.T) {
	d := &Dataset{
		Images: [][]float32{{1, 2, 3, 4}},
		Labels: []int{0},
		Height: 2, Width: 2, Channels: 1,
		NumClasses: 2,
	}

	if err := d.HFlipConcat(); err != nil {
		t.Fatalf("HFlipConcat failed: %v", err)
	}

	if d.Len() != 2 {
		t.Fatalf("len = %d, want 2", d.Len())
	}
	// Rows [1,2] and [3,4] mirrored become [2,1] and [4,3].
	want := []float32{2, 1, 4, 3}
	for i, w := range want {
		if d.Images[1][i] != w {
			t.Errorf("flipped[%d] = %v, want %v", i, d.Images[1][i], w)
		}
	}
	if d.Labels[1] != 1 {
		t.Errorf("flipped label = %d, want 1", d.Labels[1])
	}
}

func TestHFlipConcatRequiresBinaryLabels(t *testing.T) {
	d := &Dataset{NumClasses: 10}
	if err := d.HFlipConcat(); err == nil {
		t.Error("expected error for non-binary dataset")
	}
}

// Batching

func testDataset(n int) *Dataset {
	d := &Dataset{
		Height: 2, Width: 2, Channels: 1,
		NumClasses: 2,
	}
	for i := 0; i < n; i++ {
		d.Images = append(d.Images, []float32{float32(i), 0, 0, 0})
		d.Labels = append(d.Labels, i%2)
	}
	return d
}

func TestBatchesShapesAndOneHot(t *testing.T) {
	backend := cpu.New()
	d := testDataset(5)

	batches, err := Batches(d, 2, nil, backend)
	if err != nil {
		t.Fatalf("Batches failed: %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if !batches[0].Images.Shape().Equal(tensor.Shape{2, 2, 2, 1}) {
		t.Errorf("batch images shape = %v", batches[0].Images.Shape())
	}
	if !batches[0].Labels.Shape().Equal(tensor.Shape{2, 2}) {
		t.Errorf("batch labels shape = %v", batches[0].Labels.Shape())
	}
	if batches[2].Size != 1 {
		t.Errorf("last batch size = %d, want 1", batches[2].Size)
	}

	// Unshuffled: sample 0 has label 0, sample 1 has label 1.
	if batches[0].Labels.At(0, 0) != 1 || batches[0].Labels.At(1, 1) != 1 {
		t.Error("one-hot labels do not match sample labels")
	}
	if batches[0].Labels.At(0, 1) != 0 || batches[0].Labels.At(1, 0) != 0 {
		t.Error("one-hot labels must be zero off the label index")
	}
}

func TestBatchesShuffleIsPermutation(t *testing.T) {
	backend := cpu.New()
	d := testDataset(8)

	batches, err := Batches(d, 3, rand.New(rand.NewSource(1)), backend)
	if err != nil {
		t.Fatalf("Batches failed: %v", err)
	}

	// First pixel of each image identifies the sample.
	seen := make(map[float32]bool)
	total := 0
	for _, b := range batches {
		for i := 0; i < b.Size; i++ {
			seen[b.Images.At(i, 0, 0, 0)] = true
			total++
		}
	}
	if total != 8 || len(seen) != 8 {
		t.Errorf("shuffle lost samples: %d total, %d unique", total, len(seen))
	}
}

func TestBatchesRejectsBadBatchSize(t *testing.T) {
	backend := cpu.New()
	if _, err := Batches(testDataset(4), 0, nil, backend); err == nil {
		t.Error("expected error for zero batch size")
	}
}
