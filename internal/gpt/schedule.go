package gpt

// LearningRate is a linear warmup followed by a linear decay to a floor.
type LearningRate struct {
	Base        float32
	Min         float32
	WarmupSteps int
	DecaySteps  int
}

// DefaultLearningRate returns the stock schedule.
func DefaultLearningRate() LearningRate {
	return LearningRate{Base: 0.001, Min: 0.00001, WarmupSteps: 100, DecaySteps: 50000}
}

// At returns the learning rate for a step.
func (lr LearningRate) At(step int) float32 {
	if step < lr.WarmupSteps {
		return lr.Base / float32(lr.WarmupSteps) * float32(step)
	}
	if lr.DecaySteps <= 0 {
		return lr.Base
	}
	decayed := lr.Base - (lr.Base-lr.Min)*float32(step-lr.WarmupSteps)/float32(lr.DecaySteps)
	return max(lr.Min, decayed)
}
