package errutil

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeGroup(t *testing.T) {
	eg := SafeGroup()
	eg.Add(nil)
	assert.Equal(t, nil, eg.Err(), "should be nil")
	err1 := errors.New("err1")
	eg.Add(err1)
	assert.Equal(t, err1, eg.Err(), "should be err1")
	err2 := errors.New("err2")
	eg.Add(err2)
	assert.NotEqual(t, err1, eg.Err(), "should be no longer err1")
	assert.Equal(t, "err1; err2", eg.Err().Error(), "should compose Error()")
	assert.True(t, errors.Is(eg.Err(), err1), "should match err1")
	assert.True(t, errors.Is(eg.Err(), err2), "should match err2")
}

func TestSafeGroup_Concurrent(t *testing.T) {
	eg := SafeGroup()
	wg := &sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eg.Add(errors.New("failed"))
		}()
	}
	wg.Wait()
	assert.Len(t, eg.Err().(interface{ Unwrap() []error }).Unwrap(), 10)
}

func TestUnsafeGroup(t *testing.T) {
	eg := UnsafeGroup()
	assert.NoError(t, eg.Err())
	eg.Add(errors.New("close channel"))
	eg.Add(nil)
	assert.EqualError(t, eg.Err(), "close channel")
}
