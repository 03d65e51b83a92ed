package gpt

import (
	"fmt"
	"math/rand"
)

// Batch holds batchSize sequences of numTokens token IDs, row-major.
// Targets are the inputs shifted by one position.
type Batch struct {
	Inputs  []int
	Targets []int
}

// SampleBatch draws batchSize windows from dataset at random offsets.
func SampleBatch(rng *rand.Rand, dataset []int, batchSize, numTokens int) (Batch, error) {
	if len(dataset) <= numTokens {
		return Batch{}, fmt.Errorf("dataset of %d tokens is too short for %d-token windows", len(dataset), numTokens)
	}
	b := Batch{
		Inputs:  make([]int, 0, batchSize*numTokens),
		Targets: make([]int, 0, batchSize*numTokens),
	}
	for i := 0; i < batchSize; i++ {
		start := rng.Intn(len(dataset) - numTokens)
		b.Inputs = append(b.Inputs, dataset[start:start+numTokens]...)
		b.Targets = append(b.Targets, dataset[start+1:start+numTokens+1]...)
	}
	return b, nil
}
