package core_test

import (
	"errors"
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllPages_DrainsPastTheCap(t *testing.T) {
	// 2503 rows behind a 1000-row cap must come back complete.
	total := 2503
	var calls int
	got, err := core.FetchAllPages(1000, func(limit, offset int) ([]int, error) {
		calls++
		var page []int
		for i := offset; i < offset+limit && i < total; i++ {
			page = append(page, i)
		}
		return page, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, total)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2502, got[total-1])
}

func TestFetchAllPages_ExactMultipleIssuesFinalEmptyPage(t *testing.T) {
	var calls int
	got, err := core.FetchAllPages(1000, func(limit, offset int) ([]int, error) {
		calls++
		if offset >= 2000 {
			return nil, nil
		}
		page := make([]int, limit)
		return page, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 2000)
	assert.Equal(t, 3, calls)
}

func TestFetchAllPages_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := core.FetchAllPages(10, func(limit, offset int) ([]int, error) {
		if offset > 0 {
			return nil, boom
		}
		return make([]int, limit), nil
	})
	assert.ErrorIs(t, err, boom)
}
