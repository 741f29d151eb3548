package sampler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const statFixture = `cpu  4705 150 1120 16372 250 30 45 100 0 0
cpu0 2352 75 560 8186 125 15 22 50 0 0
cpu1 2353 75 560 8186 125 15 23 50 0 0
intr 114930548 113199788 3 0 5 263 0 4
ctxt 1990473
btime 1062191376
processes 2915
procs_running 1
procs_blocked 0
softirq 183433 0 21755 12 39 1137 231 21459 2263
`

func writeStat(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(contents), 0o644))
	return dir
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("missing mount", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{Mount: filepath.Join(t.TempDir(), "does-not-exist")})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to open proc filesystem")
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		s, err := New(Config{Mount: writeStat(t, statFixture)})
		require.NoError(t, err)
		require.NotNil(t, s)
	})
}

func TestSampler_Sample(t *testing.T) {
	t.Parallel()

	t.Run("reads aggregate counters", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		s, err := New(Config{Clock: clock, Mount: writeStat(t, statFixture)})
		require.NoError(t, err)

		c, err := s.Sample()
		require.NoError(t, err)

		require.True(t, c.Time.Equal(clock.Now()))
		require.EqualValues(t, 4705, c.User)
		require.EqualValues(t, 150, c.Nice)
		require.EqualValues(t, 1120, c.System)
		require.EqualValues(t, 16372, c.Idle)
		require.EqualValues(t, 250, c.Iowait)
		require.EqualValues(t, 30, c.IRQ)
		require.EqualValues(t, 45, c.SoftIRQ)
		require.EqualValues(t, 100, c.Steal)
		require.EqualValues(t, 4705+150+1120+30+45+100, c.Busy)
		require.EqualValues(t, 4705+150+1120+16372+250+30+45+100, c.Total())
	})

	t.Run("missing stat file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(statFixture), 0o644))

		s, err := New(Config{Mount: dir})
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(dir, "stat")))

		_, err = s.Sample()
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read kernel stats")
	})
}
