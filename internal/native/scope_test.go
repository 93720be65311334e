package native

import (
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

func TestScope_ReleasesInReverseOrder(t *testing.T) {
	ledger := NewLedger()
	scope := ledger.Begin()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		scope.Adopt(func() { order = append(order, i) })
	}

	if got := scope.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	scope.Close()

	want := []int{2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("released %d buffers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("release order = %v, want %v", order, want)
			break
		}
	}

	stats := ledger.Stats()
	if stats.Allocated != 3 || stats.Released != 3 {
		t.Errorf("Stats() = %+v, want 3/3", stats)
	}
	if stats.Live() != 0 {
		t.Errorf("Live() = %d, want 0", stats.Live())
	}
}

func TestScope_CloseIsIdempotent(t *testing.T) {
	ledger := NewLedger()
	scope := ledger.Begin()

	calls := 0
	scope.Adopt(func() { calls++ })

	scope.Close()
	scope.Close()

	if calls != 1 {
		t.Errorf("release called %d times, want 1", calls)
	}
	if got := ledger.Stats().Released; got != 1 {
		t.Errorf("Released = %d, want 1", got)
	}
}

func TestScope_AdoptAfterCloseReleasesImmediately(t *testing.T) {
	ledger := NewLedger()
	scope := ledger.Begin()
	scope.Close()

	released := false
	scope.Adopt(func() { released = true })

	if !released {
		t.Error("buffer adopted by a closed scope should be released immediately")
	}
	if stats := ledger.Stats(); stats.Live() != 0 {
		t.Errorf("Live() = %d, want 0", stats.Live())
	}
}

func TestScope_AdoptNilIsIgnored(t *testing.T) {
	ledger := NewLedger()
	scope := ledger.Begin()
	scope.Adopt(nil)
	scope.Close()

	if stats := ledger.Stats(); stats.Allocated != 0 {
		t.Errorf("Allocated = %d, want 0", stats.Allocated)
	}
}

func TestScope_ChildSharesLedger(t *testing.T) {
	ledger := NewLedger()
	parent := ledger.Begin()
	child := parent.Child()

	child.Adopt(func() {})
	parent.Adopt(func() {})

	if got := ledger.Stats().Live(); got != 2 {
		t.Fatalf("Live() = %d, want 2", got)
	}

	child.Close()
	if got := ledger.Stats().Live(); got != 1 {
		t.Errorf("Live() after child close = %d, want 1", got)
	}
	if got := parent.Len(); got != 1 {
		t.Errorf("parent Len() = %d, want 1", got)
	}

	parent.Close()
	if got := ledger.Stats().Live(); got != 0 {
		t.Errorf("Live() after parent close = %d, want 0", got)
	}
}

func TestScope_ZeroValueIsUntracked(t *testing.T) {
	var scope Scope
	released := false
	scope.Adopt(func() { released = true })
	scope.Close()

	if !released {
		t.Error("zero-value scope should still release buffers")
	}
}

func TestLedger_ConcurrentScopes(t *testing.T) {
	ledger := NewLedger()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				scope := ledger.Begin()
				scope.Adopt(func() {})
				scope.Adopt(func() {})
				scope.Close()
			}
		}()
	}
	wg.Wait()

	stats := ledger.Stats()
	if stats.Allocated != 8*250*2 {
		t.Errorf("Allocated = %d, want %d", stats.Allocated, 8*250*2)
	}
	if stats.Live() != 0 {
		t.Errorf("Live() = %d, want 0", stats.Live())
	}
}

func TestScope_NewMat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	ledger := NewLedger()
	scope := ledger.Begin()

	mat := scope.NewMat()
	if !mat.Empty() {
		t.Error("NewMat() should return an empty Mat")
	}

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	scope.AdoptMat(&frame)

	if got := ledger.Stats().Live(); got != 2 {
		t.Errorf("Live() = %d, want 2", got)
	}

	scope.Close()
	if got := ledger.Stats().Live(); got != 0 {
		t.Errorf("Live() after close = %d, want 0", got)
	}
}
