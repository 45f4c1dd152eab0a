package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_SizeClasses(t *testing.T) {
	tests := []struct {
		size    int
		wantCap int
	}{
		{size: 0, wantCap: SmallSize},
		{size: 100, wantCap: SmallSize},
		{size: SmallSize, wantCap: SmallSize},
		{size: SmallSize + 1, wantCap: MediumSize},
		{size: MediumSize, wantCap: MediumSize},
		{size: MediumSize + 1, wantCap: LargeSize},
		{size: LargeSize, wantCap: LargeSize},
		{size: LargeSize + 1, wantCap: LargeSize + 1},
	}

	for _, tt := range tests {
		buf := Get(tt.size)
		assert.Len(t, buf, tt.size)
		assert.Equal(t, tt.wantCap, cap(buf), "size %d", tt.size)
		Put(buf)
	}
}

func TestPut_IgnoresForeignBuffers(t *testing.T) {
	assert.NotPanics(t, func() {
		Put(nil)
		Put(make([]byte, 10))
		Put(make([]byte, LargeSize*2))
	})

	// A foreign buffer never comes back out of a size class.
	buf := Get(MediumSize)
	assert.Equal(t, MediumSize, cap(buf))
	Put(buf)
}

func TestGet_RestoresFullLength(t *testing.T) {
	buf := Get(10)
	Put(buf)

	again := Get(SmallSize)
	assert.Len(t, again, SmallSize)
	Put(again)
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := Get(MediumSize)
				buf[0] = byte(i)
				Put(buf)
			}
		}(i)
	}
	wg.Wait()
}
