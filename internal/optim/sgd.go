package optim

import "fmt"

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	momentum float32
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) (*SGD, error) {
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("sgd: momentum must be in [0, 1), got %v", config.Momentum)
	}
	return &SGD{momentum: config.Momentum}, nil
}

// Name returns "sgd".
func (*SGD) Name() string { return "sgd" }

// Moments returns 1 (the velocity) with momentum, 0 without.
func (s *SGD) Moments() int {
	if s.momentum == 0 {
		return 0
	}
	return 1
}

// Step performs a single optimization step.
func (s *SGD) Step(state *State, params []Param, lr float32) error {
	all, err := moments(params, s.Moments())
	if err != nil {
		return err
	}

	state.Step++
	for j, p := range params {
		if s.momentum == 0 {
			for i, g := range p.Grad {
				p.Value[i] -= lr * g
			}
			continue
		}
		velocity := all[j][0]
		for i, g := range p.Grad {
			velocity[i] = s.momentum*velocity[i] + g
			p.Value[i] -= lr * velocity[i]
		}
	}
	return nil
}
