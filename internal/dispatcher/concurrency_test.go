package dispatcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/erinaldi/taxi/internal/store"
	"github.com/erinaldi/taxi/internal/task"
)

// TestClaimIsAtomicUnderConcurrentTaxis races several taxis at the same
// pending task through fakeStore.Claim. Exactly one may win; the rest
// must observe ClaimContention rather than a torn or double-applied
// update (spec.md §4.5 step 5's compare-and-set requirement).
func TestClaimIsAtomicUnderConcurrentTaxis(t *testing.T) {
	_, fs := newTestDispatcher()
	require.NoError(t, fs.Insert(context.Background(), []*task.Task{
		{ID: 1, TaskType: task.TaskCopy, Status: task.StatusPending, StartTime: -1, RunTime: -1},
	}))

	const racers = 8
	wins := make([]bool, racers)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			_, err := fs.Claim(ctx, 1, fmt.Sprintf("taxi-%d", i))
			if err == nil {
				wins[i] = true
				return nil
			}
			var contention *store.ClaimContention
			if !assert.ErrorAs(t, err, &contention) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	assert.Equal(t, 1, winCount, "exactly one taxi should win the claim race")
	assert.Equal(t, racers, fs.claimAttempts)

	blob, err := fs.GetBlob(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, task.StatusActive, blob[1].Status)
}
