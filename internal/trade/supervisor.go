package trade

import (
	"time"

	"go.uber.org/zap"
)

// Supervisor periodically sweeps the registry and cancels sessions past
// their deadline. The race against an in-flight settlement is resolved by
// the session's commit flag: whichever acquires it first wins and the
// loser's action is a no-op.
type Supervisor struct {
	logger   *zap.Logger
	registry *Registry
	engine   *Engine
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewSupervisor creates a timeout supervisor sweeping at the given interval.
func NewSupervisor(logger *zap.Logger, registry *Registry, engine *Engine, interval time.Duration) *Supervisor {
	return &Supervisor{
		logger:   logger.Named("supervisor"),
		registry: registry,
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (sv *Supervisor) Start() {
	go sv.run()
}

// Stop halts the sweep loop and waits for it to exit.
func (sv *Supervisor) Stop() {
	close(sv.stop)
	<-sv.done
}

func (sv *Supervisor) run() {
	defer close(sv.done)
	ticker := time.NewTicker(sv.interval)
	defer ticker.Stop()

	sv.logger.Info("timeout supervisor started", zap.Duration("interval", sv.interval))
	for {
		select {
		case <-ticker.C:
			sv.Sweep(time.Now())
		case <-sv.stop:
			sv.logger.Info("timeout supervisor stopped")
			return
		}
	}
}

// Sweep cancels every session whose deadline has passed. Exported for tests
// and for callers that drive their own scheduling.
func (sv *Supervisor) Sweep(now time.Time) {
	for _, s := range sv.registry.Sessions() {
		if now.After(s.Deadline()) {
			sv.logger.Info("session deadline passed",
				zap.String("session_id", s.ID().String()),
				zap.Time("deadline", s.Deadline()))
			sv.engine.Expire(s)
		}
	}
}
