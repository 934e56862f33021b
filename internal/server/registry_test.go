package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

func TestScanRegistry_Lifecycle(t *testing.T) {
	r := NewScanRegistry(0)

	job := r.Register("a", "https://example.com")
	assert.Equal(t, StatusPending, job.Status)
	assert.Nil(t, job.StartedAt)

	r.MarkRunning("a")
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	result := schemas.NewScanResult("https://example.com")
	r.Finish("a", &result, nil)
	got, _ = r.Get("a")
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.Same(t, &result, got.Result)

	// Finished jobs keep their status.
	r.Finish("a", nil, errors.New("late failure"))
	r.MarkRunning("a")
	got, _ = r.Get("a")
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.Error)

	// Unknown IDs are ignored.
	r.MarkRunning("nope")
	r.Finish("nope", nil, nil)
	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestScanRegistry_FinishStatus(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want JobStatus
	}{
		{"success", nil, StatusCompleted},
		{"cancelled", fmt.Errorf("scan aborted: %w", context.Canceled), StatusCancelled},
		{"fatal", &schemas.BackendFatalError{Op: "launch", Err: errors.New("no chrome")}, StatusFailed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewScanRegistry(0)
			r.Register("id", "https://example.com")
			r.Finish("id", nil, tc.err)
			got, _ := r.Get("id")
			assert.Equal(t, tc.want, got.Status)
			if tc.err != nil {
				assert.Equal(t, tc.err.Error(), got.Error)
			}
		})
	}
}

func TestScanRegistry_Eviction(t *testing.T) {
	r := NewScanRegistry(2)

	r.Register("old-running", "https://a.example")
	r.MarkRunning("old-running")
	r.Register("done-1", "https://b.example")
	r.Finish("done-1", nil, nil)
	r.Register("done-2", "https://c.example")
	r.Finish("done-2", nil, nil)

	// Running jobs are never evicted; the oldest finished one goes first.
	ids := func() []string {
		var out []string
		for _, j := range r.List() {
			out = append(out, j.ID)
		}
		return out
	}
	assert.Equal(t, []string{"old-running", "done-2"}, ids())

	r.Register("new", "https://d.example")
	assert.Equal(t, []string{"old-running", "new"}, ids())
}
