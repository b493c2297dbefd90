package tracked

import (
	"context"
	"strconv"
	"testing"

	"github.com/kbukum/eventstream/pipeline"
)

func TestEnvelope_Tracked(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope[int]
		want bool
	}{
		{"with id", New("7", 1), true},
		{"bare value", Value(1), false},
		{"empty id", New("", 1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.env.Tracked(); got != tc.want {
				t.Errorf("Tracked() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValues(t *testing.T) {
	ctx := context.Background()
	it := Values(pipeline.FromSlice([]string{"a", "b"}).Iter(ctx))
	defer it.Close()

	got, err := pipeline.Collect(ctx, pipeline.From(it))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Data != "a" || got[1].Data != "b" {
		t.Fatalf("unexpected envelopes: %+v", got)
	}
	for _, e := range got {
		if e.Tracked() {
			t.Errorf("bare value should be untracked: %+v", e)
		}
	}
}

func TestSequence(t *testing.T) {
	ctx := context.Background()
	it := Sequence(pipeline.FromSlice([]int{1, 2, 3}).Iter(ctx), func(n int) string {
		if n == 2 {
			return ""
		}
		return strconv.Itoa(n * 10)
	})

	got, err := pipeline.Collect(ctx, pipeline.From(it))
	if err != nil {
		t.Fatal(err)
	}
	wantIDs := []string{"10", "", "30"}
	for i, e := range got {
		if e.ID != wantIDs[i] || e.Data != i+1 {
			t.Errorf("envelope %d = %+v, want id %q", i, e, wantIDs[i])
		}
	}
}

func TestSequence_PreservesPoller(t *testing.T) {
	ctx := context.Background()
	it := Values(pipeline.FromSlice([]int{1}).Iter(ctx))
	poller, ok := it.(pipeline.Poller[Envelope[int]])
	if !ok {
		t.Fatal("expected Poller to be preserved")
	}
	e, ok, err := poller.TryNext(ctx)
	if err != nil || !ok || e.Data != 1 {
		t.Fatalf("TryNext: %+v ok=%v err=%v", e, ok, err)
	}

	ch := make(chan int)
	plain := Values[int](&blockingIter{ch: ch})
	if _, ok := plain.(pipeline.Poller[Envelope[int]]); ok {
		t.Error("iterator without TryNext should not gain it")
	}
}

type blockingIter struct{ ch chan int }

func (b *blockingIter) Next(ctx context.Context) (int, bool, error) {
	select {
	case v, ok := <-b.ch:
		return v, ok, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

func (b *blockingIter) Close() error { return nil }
