package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

func TestCounterServiceNextDelegatesToRepository(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" || step != 2 {
				t.Fatalf("unexpected call %s/%d", counterID, step)
			}
			return 42, nil
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	value, err := svc.Next(context.Background(), CounterCommand{CounterID: "orders", Step: 2})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected 42, got %d", value)
	}
}

func TestCounterServiceValidatesInput(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), CounterCommand{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
	if _, err := svc.Next(context.Background(), CounterCommand{CounterID: "orders", Step: -1}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for negative step, got %v", err)
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(context.Context, string, int64) (int64, error) {
			return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "limit reached", nil)
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	_, err = svc.Next(context.Background(), CounterCommand{CounterID: "orders", Step: 1})
	if !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}
