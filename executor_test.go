package ringrt

import (
	"testing"

	"github.com/ringrt/ringrt/internal/task"
)

// spinPark is a trivial Park that never actually blocks, used to exercise
// LocalExecutor/Handle/Spawn without a real io_uring instance backing them.
type spinPark struct{}

func (spinPark) Enter() (exit func())      { return nil }
func (spinPark) ParkFor(ParkRequest) error { return nil }
func (spinPark) NeedsPark() bool           { return false }
func (spinPark) Unparker() Unparker        { return noopUnparker{} }
func (spinPark) Shutdown()                 {}

type noopUnparker struct{}

func (noopUnparker) Unpark() {}

func TestBlockReturnsRootValue(t *testing.T) {
	e := NewLocalExecutor(spinPark{})
	defer e.Close()

	got := Block[int](e, func(wake func()) (int, bool) {
		return 1 + 1, true
	})
	if got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestSpawnBeforeBlock(t *testing.T) {
	e := NewLocalExecutor(spinPark{})
	defer e.Close()

	h := e.Handle()
	jh := Spawn(h, func(wake func()) (int, bool) {
		return 1 + 1, true
	})

	polled := false
	got := Block[int](e, func(wake func()) (int, bool) {
		v, err, ready := jh.Poll(wake)
		if !ready {
			polled = true
			return 0, false
		}
		if err != nil {
			t.Fatalf("unexpected join error: %v", err)
		}
		return v, true
	})
	_ = polled
	if got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestSpawnInsideBlockUsesCurrent(t *testing.T) {
	e := NewLocalExecutor(spinPark{})
	defer e.Close()

	var jh *task.JoinHandle[int]
	got := Block[int](e, func(wake func()) (int, bool) {
		if jh == nil {
			jh = SpawnCurrent(func(wake func()) (int, bool) {
				return 21 * 2, true
			})
		}
		v, err, ready := jh.Poll(wake)
		if !ready {
			return 0, false
		}
		if err != nil {
			t.Fatalf("unexpected join error: %v", err)
		}
		return v, true
	})
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestSpawnAfterExecutorClosedResolvesCancelled(t *testing.T) {
	e := NewLocalExecutor(spinPark{})
	h := e.Handle()
	e.Close()

	jh := Spawn(h, func(wake func()) (int, bool) {
		t.Fatal("future spawned onto a closed executor must never be polled")
		return 0, true
	})

	_, err, ready := jh.Poll(func() {})
	if !ready {
		t.Fatal("expected immediate resolution")
	}
	if err != task.ErrCancelled {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
}

func TestCurrentPanicsOutsideBlock(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Current to panic outside of Block")
		}
	}()
	Current()
}
