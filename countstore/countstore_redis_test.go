package countstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisCountStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCountStore("redis://localhost:6379/0")
	if err != nil {
		t.Fail()
	}

	// unique name per run, since total-period counters never expire
	name := fmt.Sprintf("live-%d", time.Now().UnixNano())

	c, err := cs.GetCount(ctx, name, "val1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, name, "val1"))
	assert.NoError(cs.Increment(ctx, name, "val1"))
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, name, "val1", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCountDistinct(ctx, name, "val2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, name, "val2", "one"))
	assert.NoError(cs.IncrementDistinct(ctx, name, "val2", "one"))
	assert.NoError(cs.IncrementDistinct(ctx, name, "val2", "two"))
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, name, "val2", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}
}
