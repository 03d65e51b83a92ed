package optim

import (
	"fmt"
	"math"
)

// AdamW implements Adam with decoupled weight decay.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * (m_hat / (sqrt(v_hat) + eps) + wd * param)
//
// Reference: "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019)
type AdamW struct {
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
}

// AdamWConfig holds configuration for the AdamW optimizer.
type AdamWConfig struct {
	Betas       [2]float32 // Coefficients for computing running averages
	Eps         float32    // Term for numerical stability
	WeightDecay float32    // Decoupled weight decay coefficient
}

// DefaultAdamWConfig returns beta1 0.9, beta2 0.999, eps 1e-8, weight decay 0.01.
func DefaultAdamWConfig() AdamWConfig {
	return AdamWConfig{
		Betas:       [2]float32{0.9, 0.999},
		Eps:         1e-8,
		WeightDecay: 0.01,
	}
}

// Validate checks hyperparameter ranges.
func (c AdamWConfig) Validate() error {
	for i, b := range c.Betas {
		if b < 0 || b >= 1 {
			return fmt.Errorf("adamw: beta%d must be in [0, 1), got %v", i+1, b)
		}
	}
	if c.Eps <= 0 {
		return fmt.Errorf("adamw: eps must be positive, got %v", c.Eps)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("adamw: weight decay must be non-negative, got %v", c.WeightDecay)
	}
	return nil
}

// NewAdamW creates an AdamW optimizer. Zero fields take their defaults,
// except WeightDecay, where zero disables decay.
func NewAdamW(config AdamWConfig) *AdamW {
	def := DefaultAdamWConfig()
	if config.Betas[0] == 0 {
		config.Betas[0] = def.Betas[0]
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = def.Betas[1]
	}
	if config.Eps == 0 {
		config.Eps = def.Eps
	}
	return &AdamW{
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
	}
}

// Name returns "adamw".
func (*AdamW) Name() string { return "adamw" }

// Moments returns 2: first and second moment estimates.
func (*AdamW) Moments() int { return 2 }

// Step performs a single optimization step.
func (a *AdamW) Step(state *State, params []Param, lr float32) error {
	all, err := moments(params, 2)
	if err != nil {
		return err
	}

	state.Step++
	t := float64(state.Step)

	// bias_correction1 = 1 - beta1^t
	// bias_correction2 = 1 - beta2^t
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), t))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), t))

	for j, p := range params {
		m, v := all[j][0], all[j][1]
		for i, g := range p.Grad {
			m[i] = a.beta1*m[i] + (1.0-a.beta1)*g
			v[i] = a.beta2*v[i] + (1.0-a.beta2)*g*g
			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			p.Value[i] -= lr * (mHat/(float32(math.Sqrt(float64(vHat)))+a.eps) + a.weightDecay*p.Value[i])
		}
	}
	return nil
}
