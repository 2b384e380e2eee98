package zim

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterCacheRespectsCapacity(t *testing.T) {
	var loads int32
	cc := NewClusterCache(2, func(idx ClusterIndex) (*Cluster, error) {
		atomic.AddInt32(&loads, 1)
		return &Cluster{Compression: CompressionNone}, nil
	})

	for i := ClusterIndex(0); i < 5; i++ {
		_, err := cc.Get(i)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, cc.ll.Len(), 2)
	assert.Equal(t, int32(5), atomic.LoadInt32(&loads))

	// Re-fetching the most recently cached entry must not trigger a load.
	_, err := cc.Get(4)
	require.NoError(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&loads))
}

// Coalesced miss: concurrent Get calls for the same key load exactly once.
func TestClusterCacheCoalescesMisses(t *testing.T) {
	var loads int32
	block := make(chan struct{})
	cc := NewClusterCache(8, func(idx ClusterIndex) (*Cluster, error) {
		atomic.AddInt32(&loads, 1)
		<-block
		return &Cluster{Compression: CompressionNone}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cc.Get(0)
			assert.NoError(t, err)
		}()
	}
	close(block)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}
