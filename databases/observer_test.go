package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/citizenvoice/citizenvoice-api/databases"
)

func TestObserveReportsToContextObserver(t *testing.T) {
	var got []string
	var gotErr error
	ctx := databases.WithQueryObserver(context.Background(), func(op, coll string, took time.Duration, err error) {
		got = append(got, op+" "+coll)
		gotErr = err
		assert.GreaterOrEqual(t, took, time.Duration(0))
	})

	boom := errors.New("boom")
	databases.ObserveQuery(ctx, "find", "issues", time.Now(), boom)
	assert.Equal(t, []string{"find issues"}, got)
	assert.Equal(t, boom, gotErr)

	// no observer installed
	databases.ObserveQuery(context.Background(), "find", "issues", time.Now(), nil)
	assert.Len(t, got, 1)
}
