package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "rule-trigger", "7", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "rule-trigger", "7"))
	assert.NoError(cs.Increment(ctx, "rule-trigger", "7"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "rule-trigger", "7", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCountDistinct(ctx, "rule-content", "7", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "rule-content", "7", "content-a"))
	assert.NoError(cs.IncrementDistinct(ctx, "rule-content", "7", "content-a"))
	assert.NoError(cs.IncrementDistinct(ctx, "rule-content", "7", "content-a"))
	c, err = cs.GetCountDistinct(ctx, "rule-content", "7", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "rule-content", "7", "content-b"))
	assert.NoError(cs.IncrementDistinct(ctx, "rule-content", "7", "content-c"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, "rule-content", "7", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// Increment two different values from four goroutines, with interleaved
	// reads (run with `-race`). A short sleep yields to the scheduler so
	// ordering is decently random.
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	fnRead := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(4)
	go fnInc("rule-trigger", "1", 10)
	go fnInc("rule-trigger", "1", 10)
	go fnRead("rule-trigger", "1", 10)
	go fnInc("rule-trigger", "2", 6)
	go fnInc("rule-trigger", "2", 6)
	go fnRead("rule-trigger", "2", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "rule-trigger", "1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "rule-trigger", "2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	// both vals landed in the shared distinct bucket
	c, err = cs.GetCountDistinct(ctx, "rule-trigger", "rule-trigger", PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
}
