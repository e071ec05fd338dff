package service

import (
	"context"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/rs/zerolog"
)

// Executor runs every state mutation of a bridge on a single goroutine.
// Tasks must not call Do themselves: they already own the state.
type Executor struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	log   zerolog.Logger
}

func NewExecutor(l zerolog.Logger) *Executor {
	return &Executor{
		tasks: make(chan func(), 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   l,
	}
}

func (e *Executor) Run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			e.log.Debug().Msg("Stopping session executor")
			return
		case task := <-e.tasks:
			e.runTask(task)
		}
	}
}

func (e *Executor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Session task panicked")
		}
	}()
	task()
}

// Do runs fn on the executor and waits for it to finish.
// Once fn has been queued it always runs to completion, so ctx only bounds the wait for a queue slot.
func (e *Executor) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case <-e.quit:
		return domain.ErrBridgeClosed
	default:
	}

	select {
	case e.tasks <- task:
	case <-e.quit:
		return domain.ErrBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		select {
		case <-finished:
			return nil
		default:
			return domain.ErrBridgeClosed
		}
	}
}

// Submit queues fn without waiting. It is used for callbacks arriving from collaborators.
func (e *Executor) Submit(fn func()) bool {
	select {
	case e.tasks <- fn:
		return true
	case <-e.quit:
		return false
	}
}

func (e *Executor) Stop() {
	e.once.Do(func() {
		close(e.quit)
	})
	<-e.done
}
