package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNotifierCoalesces(t *testing.T) {
	n := NewChannelNotifier()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Notify(ctx))
	}

	select {
	case <-n.Wakeups():
	default:
		t.Fatal("expected a pending wake-up")
	}

	select {
	case <-n.Wakeups():
		t.Fatal("wake-ups should coalesce into one")
	default:
	}

	assert.NoError(t, n.Notify(ctx), "notify never blocks")
}
