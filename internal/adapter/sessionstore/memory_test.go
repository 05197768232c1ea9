package sessionstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"devops-sentinel/internal/domain"
)

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	sc := &domain.SessionContext{SessionID: "ops-1"}
	sc.Append(domain.Exchange{RequestText: "health?", ResponseText: "fine", Status: domain.StatusComplete, At: time.Now()}, 10)

	if err := m.Put(context.Background(), sc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := m.Get(context.Background(), "ops-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.History) != 1 || got.History[0].RequestText != "health?" {
		t.Errorf("history = %+v", got.History)
	}
}

func TestMemoryPutEmptyID(t *testing.T) {
	m := NewMemory()
	if err := m.Put(context.Background(), &domain.SessionContext{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	sc := &domain.SessionContext{SessionID: "s"}
	sc.Append(domain.Exchange{RequestText: "a"}, 10)
	m.Put(context.Background(), sc)

	got, _ := m.Get(context.Background(), "s")
	got.History[0].RequestText = "mutated"

	again, _ := m.Get(context.Background(), "s")
	if again.History[0].RequestText != "a" {
		t.Error("store leaked internal state to caller")
	}
}

func TestMemoryLastWriterWins(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Put(context.Background(), &domain.SessionContext{SessionID: "s", UpdatedAt: time.Now()})
		}()
	}
	wg.Wait()
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
