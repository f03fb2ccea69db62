package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Batch is one mini-batch ready for the model: images shaped
// [batch, height, width, channels] and one-hot float32 labels shaped
// [batch, numClasses].
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B]
	Labels *tensor.Tensor[float32, B]
	Size   int
}

// Batches splits the dataset into mini-batches. With a non-nil rng the
// sample order is shuffled first. The final batch may be smaller than
// batchSize.
func Batches[B tensor.Backend](d *Dataset, batchSize int, rng *rand.Rand, backend B) ([]Batch[B], error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("dataset: batchSize must be positive, got %d", batchSize)
	}

	order := make([]int, d.Len())
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	imageSize := d.Height * d.Width * d.Channels
	batches := make([]Batch[B], 0, (d.Len()+batchSize-1)/batchSize)

	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		size := end - start

		imageData := make([]float32, size*imageSize)
		labelData := make([]float32, size*d.NumClasses)
		for i, idx := range order[start:end] {
			copy(imageData[i*imageSize:(i+1)*imageSize], d.Images[idx])
			labelData[i*d.NumClasses+d.Labels[idx]] = 1
		}

		images, err := tensor.FromSlice(imageData,
			tensor.Shape{size, d.Height, d.Width, d.Channels}, backend)
		if err != nil {
			return nil, fmt.Errorf("dataset: batch images: %w", err)
		}
		labels, err := tensor.FromSlice(labelData,
			tensor.Shape{size, d.NumClasses}, backend)
		if err != nil {
			return nil, fmt.Errorf("dataset: batch labels: %w", err)
		}

		batches = append(batches, Batch[B]{Images: images, Labels: labels, Size: size})
	}

	return batches, nil
}
