package supervisor

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// running reports whether pid exists and is not a zombie.
func running(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	st, err := p.Stat()
	if err != nil {
		return false
	}
	return st.State != "Z" && st.State != "X"
}

func TestStopKillsDescendants(t *testing.T) {
	t.Parallel()
	// The grandchild detaches into its own session so only the descendant
	// walk can reach it.
	script := `setsid sleep 300 & echo "grandchild $!"; sleep 300 & echo "child $!"; wait`
	h := newHarness(t, fixtureRoot(t), script)
	h.sup.Rescan()

	p, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	leader := *p.PID

	buf := h.sup.LogBuffer("app-a")
	require.Eventually(t, func() bool { return buf.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	var pids []int
	for _, line := range buf.Lines() {
		fields := strings.Fields(line)
		require.Len(t, fields, 2, line)
		pid, err := strconv.Atoi(fields[1])
		require.NoError(t, err)
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		require.True(t, running(pid), "pid %d should be running", pid)
	}

	require.NoError(t, h.sup.Stop(context.Background(), "app-a"))

	for _, pid := range append(pids, leader) {
		assert.Eventually(t, func() bool { return !running(pid) }, 5*time.Second, 10*time.Millisecond, "pid %d survived stop", pid)
	}
}

func TestDescendantsOfMissingProcess(t *testing.T) {
	t.Parallel()
	assert.Empty(t, descendants(999999999))
}
