package ioworker_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Manu343726/nativedbg/internal/debugger/ioworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerDeliversBytesFromBothPipesAndStopsOnClose(t *testing.T) {
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	errR, errW, err := os.Pipe()
	require.NoError(t, err)

	var mu sync.Mutex
	var stdout, stderr []byte
	w := ioworker.New(int(outR.Fd()), int(errR.Fd()), func(isStderr bool, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		if isStderr {
			stderr = append(stderr, data...)
		} else {
			stdout = append(stdout, data...)
		}
	})

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	_, err = outW.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("oops"))
	require.NoError(t, err)

	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after both pipes closed")
	}
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", string(stdout))
	assert.Equal(t, "oops", string(stderr))
}
