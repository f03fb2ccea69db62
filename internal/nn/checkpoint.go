package nn

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Checkpoint is the gob-serialized training state: every named
// parameter plus training progress metadata.
type Checkpoint struct {
	Epoch int
	Step  int
	Loss  float64
	State map[string]CheckpointTensor
}

// CheckpointTensor is the on-disk form of one parameter.
type CheckpointTensor struct {
	Shape []int
	Data  []float32
}

// SaveCheckpoint writes the parameters and metadata to path.
func SaveCheckpoint[B tensor.Backend](path string, params []*Parameter[B], epoch, step int, loss float64) error {
	state := make(map[string]CheckpointTensor, len(params))
	for _, p := range params {
		if _, exists := state[p.Name()]; exists {
			return fmt.Errorf("checkpoint: duplicate parameter name %q", p.Name())
		}
		data := make([]float32, p.NumElements())
		copy(data, p.Tensor().Data())
		state[p.Name()] = CheckpointTensor{
			Shape: p.Tensor().Shape().Clone(),
			Data:  data,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(Checkpoint{
		Epoch: epoch,
		Step:  step,
		Loss:  loss,
		State: state,
	}); err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint from path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	defer f.Close()

	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", path, err)
	}
	return &ckpt, nil
}

// RestoreParameters copies checkpoint values into params, matching by
// name and validating shapes. Every parameter must be present in the
// checkpoint.
func RestoreParameters[B tensor.Backend](c *Checkpoint, params []*Parameter[B]) error {
	for _, p := range params {
		saved, ok := c.State[p.Name()]
		if !ok {
			return fmt.Errorf("checkpoint: missing parameter %q", p.Name())
		}
		if !p.Tensor().Shape().Equal(tensor.Shape(saved.Shape)) {
			return fmt.Errorf("checkpoint: parameter %q shape mismatch: have %v, checkpoint %v",
				p.Name(), p.Tensor().Shape(), saved.Shape)
		}
		copy(p.Tensor().Data(), saved.Data)
	}
	return nil
}
