package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// Dependency is pinged once before any consumer starts.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

// Consumer is a subscription loop that runs until its context ends.
type Consumer struct {
	Name string
	Run  func(context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Consumers    []Consumer
}

// Service runs the Pub/Sub consumers that fan mission events out to users.
// When one consumer stops the rest are cancelled.
type Service struct {
	logg      *logger.Logger
	deps      []Dependency
	consumers []Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, d := range params.Dependencies {
		if d.Name == "" || d.Ping == nil {
			return nil, fmt.Errorf("dependency %q needs a name and a ping", d.Name)
		}
	}
	for _, c := range params.Consumers {
		if c.Name == "" || c.Run == nil {
			return nil, fmt.Errorf("consumer %q needs a name and a run func", c.Name)
		}
	}
	return &Service{logg: params.Logger, deps: params.Dependencies, consumers: params.Consumers}, nil
}

func (s *Service) ready(ctx context.Context) error {
	for _, d := range s.deps {
		if err := d.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", d.Name), err)
			return fmt.Errorf("%s ping failed: %w", d.Name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, c := range s.consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			err := c.Run(s.logg.WithField(runCtx, "consumer", c.Name))
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			s.logg.Error(runCtx, fmt.Sprintf("consumer %s stopped unexpectedly", c.Name), err)
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.Name, err))
			mu.Unlock()
		}()
	}
	wg.Wait()

	if errs != nil {
		return errs
	}
	if err := ctx.Err(); err != nil {
		s.logg.Info(ctx, "worker context canceled")
		return err
	}
	return nil
}
