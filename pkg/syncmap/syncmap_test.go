package syncmap_test

import (
	"sync"
	"testing"

	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/syncmap"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestStoreLoadDelete(t *testing.T) {
	t.Parallel()

	var m syncmap.Map[int64, string]

	m.Store(1, "a")
	m.Store(1, "b")
	m.Store(2, "c")

	value, ok := m.Load(1)
	assert.True(t, ok)
	assert.Equal(t, "b", value)
	assert.Equal(t, 2, m.Count())

	m.Delete(1)
	_, ok = m.Load(1)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestLoadOrCreateRunsOnce(t *testing.T) {
	t.Parallel()

	var m syncmap.Map[int64, *int]

	created := atomic.NewInt32(0)

	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			m.LoadOrCreate(42, func() *int {
				created.Inc()

				return new(int)
			})
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, m.Count())
}
