package taskhost

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortLivedSpawner(args ...string) Spawner {
	return func(ctx context.Context, runtime, architecture string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, "sh", append([]string{"-c"}, args...)...)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

// TestProcess_WaitForExit_ExitsWithinBound checks that after the
// process reports its own completion, within the bound it either no
// longer exists or has exited.
func TestProcess_WaitForExit_ExitsWithinBound(t *testing.T) {
	p, err := Spawn(context.Background(), "net8.0", "x64", shortLivedSpawner("sleep 0.05"), nil)
	require.NoError(t, err)
	require.NotZero(t, p.Pid())

	exited := p.WaitForExit(2 * time.Second)
	assert.True(t, exited, "task host process must exit within the bound after completion")
}

func TestProcess_WaitForExit_WarnsAndReturnsFalseOnOverstay(t *testing.T) {
	var warned bool
	p, err := Spawn(context.Background(), "net8.0", "x64", shortLivedSpawner("sleep 5"), warnFunc(func(msg string, args ...any) {
		warned = true
	}))
	require.NoError(t, err)

	exited := p.WaitForExit(50 * time.Millisecond)
	assert.False(t, exited)
	assert.True(t, warned, "an overstaying process must log a warning")

	require.NoError(t, p.Terminate())
}
