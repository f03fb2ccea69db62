package optim

import (
	"math"

	"github.com/born-ml/perceiver/internal/nn"
	"github.com/born-ml/perceiver/internal/tensor"
)

// LAMB implements layer-wise adaptive moments with decoupled weight
// decay (You et al., 2019), the optimizer the reference training recipe
// uses for large-batch attention models.
//
// Per parameter tensor:
//
//	m̂, v̂   = bias-corrected Adam moments
//	update = m̂ / (sqrt(v̂) + eps) + weightDecay * param
//	ratio  = ||param|| / ||update||   (1 when either norm is 0)
//	param  = param - lr * ratio * update
//
// The trust ratio rescales each layer's step to its own weight norm,
// which keeps large and small layers training at compatible speeds.
type LAMB[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int
	m           map[*nn.Parameter[B]][]float32
	v           map[*nn.Parameter[B]][]float32
	backend     B
}

// LAMBConfig holds LAMB hyperparameters.
type LAMBConfig struct {
	LR          float32    // Learning rate (default 0.001)
	Betas       [2]float32 // Moment decay rates (default 0.9, 0.999)
	Eps         float32    // Stability term (default 1e-6)
	WeightDecay float32    // Decoupled weight decay rate (default 0)
}

// NewLAMB creates a LAMB optimizer with defaults for zero fields.
func NewLAMB[B tensor.Backend](params []*nn.Parameter[B], config LAMBConfig, backend B) *LAMB[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-6
	}

	return &LAMB[B]{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           make(map[*nn.Parameter[B]][]float32),
		v:           make(map[*nn.Parameter[B]][]float32),
		backend:     backend,
	}
}

// Step applies one LAMB update.
func (l *LAMB[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	l.t++
	biasCorrection1 := float32(1 - math.Pow(float64(l.beta1), float64(l.t)))
	biasCorrection2 := float32(1 - math.Pow(float64(l.beta2), float64(l.t)))

	for _, param := range l.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		gradData := grad.AsFloat32()
		paramData := param.Tensor().Data()
		m := l.moment(l.m, param, len(paramData))
		v := l.moment(l.v, param, len(paramData))

		update := make([]float32, len(paramData))
		var paramNorm, updateNorm float64
		for i := range paramData {
			g := gradData[i]
			m[i] = l.beta1*m[i] + (1-l.beta1)*g
			v[i] = l.beta2*v[i] + (1-l.beta2)*g*g

			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			u := mHat/(float32(math.Sqrt(float64(vHat)))+l.eps) + l.weightDecay*paramData[i]

			update[i] = u
			paramNorm += float64(paramData[i]) * float64(paramData[i])
			updateNorm += float64(u) * float64(u)
		}

		ratio := float32(1)
		if paramNorm > 0 && updateNorm > 0 {
			ratio = float32(math.Sqrt(paramNorm) / math.Sqrt(updateNorm))
		}

		step := l.lr * ratio
		for i := range paramData {
			paramData[i] -= step * update[i]
		}
	}
}

func (l *LAMB[B]) moment(store map[*nn.Parameter[B]][]float32, param *nn.Parameter[B], n int) []float32 {
	m, ok := store[param]
	if !ok {
		m = make([]float32, n)
		store[param] = m
	}
	return m
}

// GetLR returns the current learning rate.
func (l *LAMB[B]) GetLR() float32 {
	return l.lr
}

// SetLR updates the learning rate.
func (l *LAMB[B]) SetLR(lr float32) {
	l.lr = lr
}
