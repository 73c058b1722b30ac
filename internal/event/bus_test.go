package event

import (
	"reflect"
	"sync"
	"testing"
)

type kind string

func TestBus_FireInRegistrationOrder(t *testing.T) {
	b := New[kind, int]()
	var got []string
	b.On("load", func(p int) { got = append(got, "a") })
	b.On("load", func(p int) { got = append(got, "b") })
	b.On("save", func(p int) { got = append(got, "other") })

	b.Fire("load", 1)
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestBus_ZeroValueUsable(t *testing.T) {
	var b Bus[kind, string]
	var got string
	b.On("x", func(p string) { got = p })
	b.Fire("x", "payload")
	if got != "payload" {
		t.Errorf("payload = %q, want payload", got)
	}
}

func TestBus_FireWithoutSubscribers(t *testing.T) {
	b := New[kind, int]()
	b.Fire("none", 0)
	if n := b.Count("none"); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestBus_Off(t *testing.T) {
	b := New[kind, int]()
	calls := 0
	off := b.On("e", func(int) { calls++ })
	b.Fire("e", 0)
	off()
	off()
	b.Fire("e", 0)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := b.Count("e"); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestBus_Reentrant(t *testing.T) {
	b := New[kind, int]()
	var order []int
	b.On("outer", func(p int) {
		order = append(order, p)
		b.Fire("inner", p+1)
	})
	b.On("inner", func(p int) { order = append(order, p) })

	b.Fire("outer", 1)
	if want := []int{1, 2}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBus_SubscribeDuringFire(t *testing.T) {
	b := New[kind, int]()
	calls := 0
	b.On("e", func(int) {
		b.On("e", func(int) { calls++ })
	})
	b.Fire("e", 0)
	if calls != 0 {
		t.Errorf("late subscriber called %d times, want 0", calls)
	}
	if n := b.Count("e"); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestBus_PanicAbortsRemaining(t *testing.T) {
	b := New[kind, int]()
	second := false
	b.On("e", func(int) { panic("boom") })
	b.On("e", func(int) { second = true })

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Fire did not propagate the panic")
			}
		}()
		b.Fire("e", 0)
	}()
	if second {
		t.Error("subscriber after the panic was called")
	}
}

func TestBus_ConcurrentSubscribe(t *testing.T) {
	b := New[kind, int]()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.On("e", func(int) {})
		}()
	}
	wg.Wait()
	if n := b.Count("e"); n != 20 {
		t.Errorf("Count() = %d, want 20", n)
	}

	b.Clear()
	if n := b.Count("e"); n != 0 {
		t.Errorf("Count() after Clear = %d, want 0", n)
	}
}
