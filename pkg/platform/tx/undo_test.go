package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUndo(t *testing.T) {
	t.Run("rollback runs compensations newest first", func(t *testing.T) {
		ctx, rollback := WithUndo(context.Background())
		var order []int
		OnRollback(ctx, func() { order = append(order, 1) })
		OnRollback(ctx, func() { order = append(order, 2) })

		rollback()
		assert.Equal(t, []int{2, 1}, order)

		rollback()
		assert.Equal(t, []int{2, 1}, order, "log is emptied after rollback")
	})

	t.Run("registration without a log is ignored", func(t *testing.T) {
		called := false
		OnRollback(context.Background(), func() { called = true })
		assert.False(t, called)
	})
}
