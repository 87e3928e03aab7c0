package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBreakerStartsClosed(t *testing.T) {
	b := New("idempotency-redis")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "idempotency-redis", b.Name())
}

func TestBreakerTransitions(t *testing.T) {
	type step struct {
		fail     bool
		wantUse  bool // useFallback for failures, usePrimary for successes
		wantOpen bool
	}
	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the threshold failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true, wantUse: false, wantOpen: false},
				{fail: true, wantUse: false, wantOpen: false},
				{fail: true, wantUse: true, wantOpen: true},
				{fail: true, wantUse: true, wantOpen: true},
			},
		},
		{
			name: "success clears the failure streak",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{fail: true, wantOpen: false},
				{fail: false, wantUse: true, wantOpen: false},
				{fail: true, wantOpen: false},
				{fail: true, wantUse: true, wantOpen: true},
			},
		},
		{
			name: "closes after consecutive successes",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, wantUse: true, wantOpen: true},
				{fail: false, wantUse: false, wantOpen: true},
				{fail: true, wantUse: true, wantOpen: true},
				{fail: false, wantUse: false, wantOpen: true},
				{fail: false, wantUse: true, wantOpen: false},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("t", tt.opts...)
			for i, s := range tt.steps {
				var use bool
				if s.fail {
					use, _ = b.RecordFailure()
				} else {
					use, _ = b.RecordSuccess()
				}
				require.Equal(t, s.wantUse, use, "step %d", i)
				require.Equal(t, s.wantOpen, b.IsOpen(), "step %d", i)
			}
		})
	}
}

func TestBreakerReportsEachTransitionOnce(t *testing.T) {
	b := New("t", WithFailureThreshold(1), WithSuccessThreshold(1))

	_, change := b.RecordFailure()
	assert.True(t, change.Opened)
	_, change = b.RecordFailure()
	assert.False(t, change.Opened)

	_, change = b.RecordSuccess()
	assert.True(t, change.Closed)
	_, change = b.RecordSuccess()
	assert.False(t, change.Closed)
}

func TestBreakerReset(t *testing.T) {
	b := New("t", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback, "threshold of one still applies after reset")
}

func TestNonPositiveThresholdsKeepDefaults(t *testing.T) {
	b := New("t", WithFailureThreshold(0), WithSuccessThreshold(-1))
	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}
