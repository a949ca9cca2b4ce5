package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.json")
	assert.False(t, Exists(path))
	require.NoError(t, WriteLocked(path, []byte("first"), 0644))
	assert.True(t, Exists(path))
	require.NoError(t, WriteLocked(path, []byte("second"), 0644))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
	assert.False(t, Exists(path+".tmp"))
}

func TestWriteLockedConcurrently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, WriteLocked(path, []byte(fmt.Sprintf("writer-%d", i)), 0644))
		}()
	}
	wg.Wait()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `^writer-\d$`, string(content))
}
