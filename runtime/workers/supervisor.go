// Package workers contains the supervised background units of the relay:
// the accept loop, the event fanout, and the telemetry reporter.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/errors"
)

// Supervisor runs each worker in its own goroutine, recovers panics,
// restarts crashed workers after a delay, and stops everything when the
// parent context is canceled.
type Supervisor struct {
	Cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	return &Supervisor{
		wg:              &sync.WaitGroup{},
		log:             log,
		restartInterval: restartInterval,
	}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every registered worker and blocks until all of them have
// finished. A local cancellation trigger is tied to the parent ctx so
// canceling the supervisor only affects its own children.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start runs one worker under supervision. A panic or error in the worker
// restarts it; a clean return retires it. A failure in one worker never
// stops the supervisor itself.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panicked", "name", workerName, "panic", r)
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart.
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}
