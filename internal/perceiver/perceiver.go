package perceiver

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/perceiver/internal/nn"
	"github.com/born-ml/perceiver/internal/tensor"
)

// Perceiver is the iterative latent-attention classifier.
//
// One forward pass broadcasts the learned latent array over the batch,
// then runs NumBlocks outer iterations of
//
//	latent = self_S(... self_1(cross(latent, encoded)) ...)
//
// with a single cross-attention parameter set and S self-attention
// parameter sets reused on every iteration. Parameter count therefore
// depends on S but never on NumBlocks.
type Perceiver[B tensor.Backend] struct {
	config  Config
	encoder *nn.FourierEncoder[B]
	latent  *nn.Latent[B]
	cross   *nn.Attention[B]
	selfs   []*nn.Attention[B]
	decoder *nn.Decoder[B]
	backend B
}

// New builds a Perceiver from the configuration. All parameters are
// initialized from cfg.Seed.
func New[B tensor.Backend](cfg Config, backend B) (*Perceiver[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	encoder, err := nn.NewFourierEncoder(cfg.NumFreqBands, backend)
	if err != nil {
		return nil, err
	}

	latent, err := nn.NewLatent(cfg.LatentDim, cfg.LatentChannels, backend, rng)
	if err != nil {
		return nil, err
	}

	cross, err := nn.NewAttention("cross_attend",
		cfg.LatentChannels, cfg.EncodedChannels(), cfg.NumCrossHeads, backend, rng)
	if err != nil {
		return nil, err
	}

	selfs := make([]*nn.Attention[B], cfg.NumSelfAttendsPerBlock)
	for i := range selfs {
		selfs[i], err = nn.NewAttention(fmt.Sprintf("self_attend.%d", i),
			cfg.LatentChannels, cfg.LatentChannels, cfg.NumSelfAttendHeads, backend, rng)
		if err != nil {
			return nil, err
		}
	}

	decoder, err := nn.NewDecoder(cfg.LatentChannels, cfg.NumClasses, backend, rng)
	if err != nil {
		return nil, err
	}

	return &Perceiver[B]{
		config:  cfg,
		encoder: encoder,
		latent:  latent,
		cross:   cross,
		selfs:   selfs,
		decoder: decoder,
		backend: backend,
	}, nil
}

// Forward classifies a batch of images.
//
// Input shape: [batch, height, width, InputChannels].
// Output shape: [batch, NumClasses], raw logits.
func (p *Perceiver[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("Perceiver.Forward: expected 4D input [batch, h, w, c], got %v", shape))
	}
	if shape[3] != p.config.InputChannels {
		panic(fmt.Sprintf("Perceiver.Forward: expected %d input channels, got %d", p.config.InputChannels, shape[3]))
	}

	encoded := p.encoder.Forward(input)    // [batch, h*w, encodedChannels]
	latent := p.latent.Broadcast(shape[0]) // [batch, latentDim, latentChannels]

	for block := 0; block < p.config.NumBlocks; block++ {
		latent = p.cross.Forward(latent, encoded)
		for _, selfAttend := range p.selfs {
			latent = selfAttend.Forward(latent, latent)
		}
	}

	return p.decoder.Forward(latent)
}

// Parameters returns every trainable parameter exactly once.
func (p *Perceiver[B]) Parameters() []*nn.Parameter[B] {
	params := p.latent.Parameters()
	params = append(params, p.cross.Parameters()...)
	for _, selfAttend := range p.selfs {
		params = append(params, selfAttend.Parameters()...)
	}
	params = append(params, p.decoder.Parameters()...)
	return params
}

// NumParameters returns the total trainable element count.
func (p *Perceiver[B]) NumParameters() int {
	total := 0
	for _, param := range p.Parameters() {
		total += param.NumElements()
	}
	return total
}

// Config returns the model configuration.
func (p *Perceiver[B]) Config() Config {
	return p.config
}
