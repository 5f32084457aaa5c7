package recontext

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type key struct{}

func TestWithNewTimeout_KeepsValues(t *testing.T) {
	ctx := context.WithValue(context.Background(), key{}, "session-1")
	derived, cancel := WithNewTimeout(ctx, time.Minute)
	defer cancel()
	assert.Check(t, cmp.Equal(derived.Value(key{}), "session-1"))
}

func TestWithNewTimeout_IgnoresParentCancellation(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	cancelParent()

	derived, cancel := WithNewTimeout(parent, time.Minute)
	defer cancel()

	assert.Check(t, cmp.ErrorIs(parent.Err(), context.Canceled))
	assert.Check(t, derived.Err())

	cancel()
	assert.Check(t, cmp.ErrorIs(derived.Err(), context.Canceled))
}

func TestWithNewDeadline_ReplacesParentDeadline(t *testing.T) {
	oldDeadline := time.Now().Add(-time.Minute)
	parent, cancelParent := context.WithDeadline(context.Background(), oldDeadline)
	defer cancelParent()

	newDeadline := time.Now().Add(time.Minute)
	derived, cancel := WithNewDeadline(parent, newDeadline)
	defer cancel()

	got, ok := derived.Deadline()
	assert.Check(t, ok)
	assert.Check(t, got.Equal(newDeadline))
	assert.Check(t, derived.Err())
}

func TestWithNewTimeout_Expires(t *testing.T) {
	derived, cancel := WithNewTimeout(context.Background(), time.Millisecond)
	defer cancel()

	select {
	case <-derived.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context did not expire")
	}
	assert.Check(t, cmp.ErrorIs(derived.Err(), context.DeadlineExceeded))
}
