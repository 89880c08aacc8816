package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(TableKey(1), IngredientKey(2))
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.Len())
}

func TestKeyedOverlappingOrderDoesNotDeadlock(t *testing.T) {
	k := NewKeyed()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := k.Lock(IngredientKey(1), IngredientKey(2))
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := k.Lock(IngredientKey(2), IngredientKey(1), IngredientKey(1))
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, k.Len())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalize([]string{"c", "a", "b", "a"}))
	assert.Empty(t, normalize(nil))
}
