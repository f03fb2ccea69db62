package dataset

import (
	"fmt"
	"math"
	"path/filepath"
)

// Dataset is a loaded split: standardized float32 images plus integer
// labels.
type Dataset struct {
	Images     [][]float32 // Per-image standardized pixels, row-major.
	Labels     []int
	Height     int
	Width      int
	Channels   int
	NumClasses int
}

// Load reads an IDX image/label pair from dir. prefix is the split
// file prefix, e.g. "train" for train-images-idx3-ubyte and
// train-labels-idx1-ubyte. Every image is standardized to zero mean and
// unit variance.
func Load(dir, prefix string, numClasses int) (*Dataset, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("dataset: numClasses must be at least 2, got %d", numClasses)
	}

	rawImages, height, width, err := ReadIDXImages(filepath.Join(dir, prefix+"-images-idx3-ubyte"))
	if err != nil {
		return nil, fmt.Errorf("dataset: load %s images: %w", prefix, err)
	}

	rawLabels, err := ReadIDXLabels(filepath.Join(dir, prefix+"-labels-idx1-ubyte"))
	if err != nil {
		return nil, fmt.Errorf("dataset: load %s labels: %w", prefix, err)
	}

	if len(rawImages) != len(rawLabels) {
		return nil, fmt.Errorf("dataset: %d images but %d labels", len(rawImages), len(rawLabels))
	}

	images := make([][]float32, len(rawImages))
	labels := make([]int, len(rawLabels))
	for i, raw := range rawImages {
		images[i] = Standardize(raw)
		label := int(rawLabels[i])
		if label >= numClasses {
			return nil, fmt.Errorf("dataset: label %d out of range for %d classes", label, numClasses)
		}
		labels[i] = label
	}

	return &Dataset{
		Images:     images,
		Labels:     labels,
		Height:     height,
		Width:      width,
		Channels:   1,
		NumClasses: numClasses,
	}, nil
}

// Standardize scales one image to zero mean and unit variance. The
// standard deviation is floored at 1/sqrt(n) so constant images map to
// zeros instead of dividing by zero.
func Standardize(raw []byte) []float32 {
	n := len(raw)
	result := make([]float32, n)
	if n == 0 {
		return result
	}

	var sum float64
	for _, v := range raw {
		sum += float64(v)
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range raw {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(n)

	std := math.Sqrt(variance)
	if floor := 1 / math.Sqrt(float64(n)); std < floor {
		std = floor
	}

	for i, v := range raw {
		result[i] = float32((float64(v) - mean) / std)
	}
	return result
}

// HFlipConcat appends a horizontally flipped copy of every image with
// its label reversed. Only meaningful for binary laterality datasets
// where mirroring an image flips its class.
func (d *Dataset) HFlipConcat() error {
	if d.NumClasses != 2 {
		return fmt.Errorf("dataset: hflip label reversal requires 2 classes, got %d", d.NumClasses)
	}

	n := len(d.Images)
	for i := 0; i < n; i++ {
		d.Images = append(d.Images, hflip(d.Images[i], d.Height, d.Width, d.Channels))
		d.Labels = append(d.Labels, 1-d.Labels[i])
	}
	return nil
}

// hflip mirrors an image along the width axis.
func hflip(image []float32, height, width, channels int) []float32 {
	flipped := make([]float32, len(image))
	rowSize := width * channels
	for y := 0; y < height; y++ {
		row := image[y*rowSize : (y+1)*rowSize]
		out := flipped[y*rowSize : (y+1)*rowSize]
		for x := 0; x < width; x++ {
			src := x * channels
			dst := (width - 1 - x) * channels
			copy(out[dst:dst+channels], row[src:src+channels])
		}
	}
	return flipped
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Images)
}
