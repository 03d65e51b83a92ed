package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Sequential())

	assert.Equal(t, int64(100), counter)
}

func TestFor_EachIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 7, 64} {
		cfg := Config{Enabled: true, NumWorkers: workers, MinChunkSize: 1}
		hits := make([]int32, 97)
		For(len(hits), func(i int) {
			atomic.AddInt32(&hits[i], 1)
		}, cfg)
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "workers=%d index=%d", workers, i)
		}
	}
}

func TestRange_Contiguous(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 5}
	var total int64
	Range(42, func(start, end int) {
		assert.Less(t, start, end)
		atomic.AddInt64(&total, int64(end-start))
	}, cfg)
	assert.Equal(t, int64(42), total)
}

func TestRange_Empty(t *testing.T) {
	called := false
	Range(0, func(_, _ int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Enabled: true}.Validate())
	assert.Error(t, Config{MinChunkSize: -1}.Validate())
}
