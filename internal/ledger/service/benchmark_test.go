package service_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remit/internal/ledger/service"
	ledgermem "remit/internal/ledger/store/memory"
	"remit/internal/ledger/treasury"
	"remit/pkg/domain"
)

func accountsN(n int) []domain.AccountID {
	out := make([]domain.AccountID, n)
	for i := range out {
		out[i][0] = 0xee
		binary.BigEndian.PutUint64(out[i][12:], uint64(i)+1)
	}
	return out
}

func newBenchLedger(tb testing.TB) *service.Ledger {
	tb.Helper()
	l, err := service.New(context.Background(), ledgermem.New(), treasury.New(treasury.WithLogger(discardLogger())), owner, collector,
		service.WithLogger(discardLogger()),
		service.WithMaxBatch(1<<20),
	)
	require.NoError(tb, err)
	return l
}

// TestBatchVerifyScalesLinearly compares allocations per entry at two batch
// sizes. Quadratic behaviour would grow the ratio with the size factor.
func TestBatchVerifyScalesLinearly(t *testing.T) {
	ctx := context.Background()
	const small, large = 500, 8000

	measure := func(n int) float64 {
		l := newBenchLedger(t)
		accounts := accountsN(n)
		return testing.AllocsPerRun(5, func() {
			if err := l.BatchVerifyUsers(ctx, owner, accounts); err != nil {
				t.Fatal(err)
			}
		})
	}

	perSmall := measure(small) / small
	perLarge := measure(large) / large
	assert.LessOrEqual(t, perLarge, perSmall*1.5+1,
		"allocations per entry: %.2f at %d vs %.2f at %d", perSmall, small, perLarge, large)
}

func TestConcurrentCreateAndRead(t *testing.T) {
	ctx := context.Background()
	tr := treasury.New(treasury.WithLogger(discardLogger()))
	l, err := service.New(ctx, ledgermem.New(), tr, owner, collector, service.WithLogger(discardLogger()))
	require.NoError(t, err)

	senders := accountsN(8)
	require.NoError(t, l.BatchVerifyUsers(ctx, owner, senders))
	for _, a := range senders {
		require.NoError(t, tr.Credit(ctx, a, amt(1_000_000)))
	}

	const perSender = 25
	var wg sync.WaitGroup
	for _, sender := range senders {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range perSender {
				_, err := l.CreateTransaction(ctx, sender, bob, amt(1000), amt(1005))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for range perSender {
				_, err := l.GetTransactionCount(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := l.GetTransactionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(senders)*perSender), n)

	seen := make(map[domain.TxID]struct{}, n)
	for i := range n {
		id, err := l.GetTransactionID(ctx, i)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, int(n), "every index maps to a distinct id")

	h, err := l.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(1000*len(senders)*perSender), h.Escrowed.String())
}

// BenchmarkBatchVerifyUsers measures per-batch cost at several sizes.
func BenchmarkBatchVerifyUsers(b *testing.B) {
	for _, n := range []int{10, 1000, 10000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			l := newBenchLedger(b)
			accounts := accountsN(n)
			ctx := context.Background()
			b.ReportAllocs()
			for b.Loop() {
				if err := l.BatchVerifyUsers(ctx, owner, accounts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCreateAndComplete measures one full escrow round trip.
func BenchmarkCreateAndComplete(b *testing.B) {
	ctx := context.Background()
	tr := treasury.New(treasury.WithLogger(discardLogger()))
	l, err := service.New(ctx, ledgermem.New(), tr, owner, collector, service.WithLogger(discardLogger()))
	require.NoError(b, err)
	require.NoError(b, l.VerifyUser(ctx, owner, alice))
	require.NoError(b, tr.Credit(ctx, alice, domain.MaxAmount()))

	b.ReportAllocs()
	for b.Loop() {
		tx, err := l.CreateTransaction(ctx, alice, bob, amt(1000), amt(1005))
		if err != nil {
			b.Fatal(err)
		}
		if err := l.CompleteTransaction(ctx, owner, tx.ID); err != nil {
			b.Fatal(err)
		}
	}
}
