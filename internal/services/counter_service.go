package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

func (s *counterService) Next(ctx context.Context, cmd CounterCommand) (int64, error) {
	counterID := strings.TrimSpace(cmd.CounterID)
	if counterID == "" {
		return 0, fmt.Errorf("%w: counter id is required", ErrCounterInvalidInput)
	}
	step := cmd.Step
	if step < 0 {
		return 0, fmt.Errorf("%w: step must not be negative", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, counterID, step)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return 0, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return 0, err
	}
	return value, nil
}
