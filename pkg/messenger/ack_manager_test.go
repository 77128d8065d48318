package messenger

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAckManagerResolve(t *testing.T) {
	m := NewAckManager[string]()

	ch, err := m.WaitForAck("m1")
	if err != nil {
		t.Fatalf("WaitForAck: %v", err)
	}

	if !m.HandleAck("m1") {
		t.Fatal("HandleAck must report the registered waiter")
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("waiter not resolved")
	}

	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestAckManagerUnknownID(t *testing.T) {
	m := NewAckManager[string]()

	done := make(chan bool)
	go func() { done <- m.HandleAck("nobody") }()

	select {
	case ok := <-done:
		if ok {
			t.Error("HandleAck without waiter must report false")
		}
	case <-time.After(time.Second):
		t.Fatal("HandleAck without waiter blocked")
	}
}

func TestAckManagerRejectsDuplicateRegistration(t *testing.T) {
	m := NewAckManager[string]()

	first, err := m.WaitForAck("m1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.WaitForAck("m1"); !errors.Is(err, ErrAckPending) {
		t.Fatalf("second registration: got %v, want ErrAckPending", err)
	}

	m.HandleAck("m1")
	select {
	case <-first:
	default:
		t.Fatal("first waiter must still be resolved")
	}

	if _, err := m.WaitForAck("m1"); err != nil {
		t.Fatalf("registration after resolve: %v", err)
	}
}

func TestAckManagerCancel(t *testing.T) {
	m := NewAckManager[string]()

	old, _ := m.WaitForAck("m1")
	m.Cancel("m1", old)
	if m.Pending() != 0 {
		t.Fatal("Cancel must remove own registration")
	}

	current, _ := m.WaitForAck("m1")
	m.Cancel("m1", old)
	if m.Pending() != 1 {
		t.Fatal("Cancel with stale channel must keep newer registration")
	}

	m.HandleAck("m1")
	<-current
}

func TestAckManagerConcurrent(t *testing.T) {
	m := NewAckManager[int]()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ch, err := m.WaitForAck(id)
			if err != nil {
				t.Error(err)
				return
			}
			go m.HandleAck(id)
			select {
			case <-ch:
			case <-time.After(time.Second):
				t.Errorf("waiter %d not resolved", id)
			}
		}(i)
	}
	wg.Wait()
	t.Logf("✅ 100 concurrent waiters resolved")
}
