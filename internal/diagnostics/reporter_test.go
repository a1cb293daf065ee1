package diagnostics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterSortsAndDeduplicates(t *testing.T) {
	r := NewReporter()
	r.Reportf(ErrTypeMismatch, Location{File: "a.kt", Line: 4, Column: 2}, "second")
	r.Reportf(ErrUnresolvedReference, Location{File: "a.kt", Line: 1, Column: 9}, "first")
	r.Reportf(ErrTypeMismatch, Location{File: "a.kt", Line: 4, Column: 2}, "duplicate")
	r.Reportf(ErrAmbiguity, Location{File: "b.kt", Line: 1, Column: 1}, "other file")

	got := r.ForFile("a.kt")
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.Len(t, r.All(), 3)
	assert.Equal(t, []string{"a.kt", "b.kt"}, r.Files())
}

func TestReporterClear(t *testing.T) {
	r := NewReporter()
	r.Reportf(ErrAmbiguity, Location{File: "a.kt", Line: 1, Column: 1}, "x")
	r.Report(ErrInvisibleReference, Location{File: "b.kt", Line: 1, Column: 1}, SeverityWarning, "y")
	assert.True(t, r.HasErrors())

	r.Clear("a.kt")
	assert.Empty(t, r.ForFile("a.kt"))
	assert.False(t, r.HasErrors())
	assert.Len(t, r.ForFile("b.kt"), 1)

	r.Clear()
	assert.Empty(t, r.All())
}

func TestNilReporterNeverPanics(t *testing.T) {
	var r *Reporter
	r.Reportf(ErrAmbiguity, Location{}, "dropped")
	assert.Nil(t, r.ForFile(""))
	assert.False(t, r.HasErrors())
}

func TestReporterConcurrentUse(t *testing.T) {
	r := NewReporter()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(line int) {
			defer wg.Done()
			r.Reportf(ErrTypeMismatch, Location{File: "c.kt", Line: line, Column: 1}, "m")
		}(i + 1)
	}
	wg.Wait()
	assert.Len(t, r.ForFile("c.kt"), 16)
}

func TestCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, CheckCancelled(ctx))
	cancel()

	err := CheckCancelled(ctx)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.True(t, errors.Is(err, context.Canceled))
}
