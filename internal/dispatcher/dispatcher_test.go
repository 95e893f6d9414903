package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
)

func TestPartition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		seeds []string
		n     int
		want  [][]string
	}{
		{
			name:  "even split",
			seeds: []string{"a", "b", "c", "d"},
			n:     2,
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "ceil chunk with short tail",
			seeds: []string{"a", "b", "c", "d", "e"},
			n:     3,
			want:  [][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		},
		{
			name:  "more agents than seeds",
			seeds: []string{"a", "b"},
			n:     5,
			want:  [][]string{{"a"}, {"b"}},
		},
		{
			name:  "single agent",
			seeds: []string{"a", "b", "c"},
			n:     1,
			want:  [][]string{{"a", "b", "c"}},
		},
		{
			name:  "no seeds",
			seeds: nil,
			n:     4,
			want:  nil,
		},
		{
			name:  "no agents",
			seeds: []string{"a"},
			n:     0,
			want:  nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Partition(tc.seeds, tc.n))
		})
	}
}

type stubRunner struct {
	name  string
	err   error
	delay time.Duration
	ran   atomic.Bool
}

func (r *stubRunner) Name() string { return r.name }

func (r *stubRunner) Run(context.Context) error {
	time.Sleep(r.delay)
	r.ran.Store(true)
	return r.err
}

func TestSupervisorWaitsForAllRunners(t *testing.T) {
	t.Parallel()

	runners := []*stubRunner{
		{name: "a"},
		{name: "b", delay: 20 * time.Millisecond},
		{name: "c"},
	}
	var rs []Runner
	for _, r := range runners {
		rs = append(rs, r)
	}

	require.NoError(t, New(rs, zap.NewNop()).Run(context.Background()))
	for _, r := range runners {
		require.True(t, r.ran.Load())
	}
}

func TestSupervisorFailureDoesNotHaltSiblings(t *testing.T) {
	t.Parallel()

	fault := &crawl.TransportError{Op: "publish", Err: errors.New("connection lost")}
	failing := &stubRunner{name: "bad", err: fault}
	slow := &stubRunner{name: "slow", delay: 30 * time.Millisecond}

	err := New([]Runner{failing, slow}, zap.NewNop()).Run(context.Background())
	require.Error(t, err)
	require.True(t, crawl.IsTransport(err))
	require.Contains(t, err.Error(), "bad")
	require.True(t, slow.ran.Load(), "sibling must run to completion")
}
