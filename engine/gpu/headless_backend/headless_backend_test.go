package headless_backend_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRacingCloseNeverPanics(t *testing.T) {
	for round := range 20 {
		backend := headless_backend.NewHeadlessBackend()

		var wg sync.WaitGroup
		for g := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 50 {
					err := backend.Submit(gpu.Submission{Label: fmt.Sprintf("r%d.g%d.%d", round, g, i)})
					if err != nil {
						assert.ErrorIs(t, err, gpu.ErrDeviceLost)
						return
					}
				}
			}()
		}
		require.NoError(t, backend.Close())
		wg.Wait()
		assert.Equal(t, len(backend.Submissions()), backend.Executed())
	}
}

func TestSubmitAfterClose(t *testing.T) {
	backend := headless_backend.NewHeadlessBackend()
	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())

	assert.ErrorIs(t, backend.Submit(gpu.Submission{Label: "late"}), gpu.ErrDeviceLost)
	assert.Empty(t, backend.Submissions())
}
