package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoEngineAvailable is returned when no engine could be acquired in time
var ErrNoEngineAvailable = errors.New("no engines available in the pool")

// Pool manages multiple chess engines
type Pool struct {
	engines    map[string]*UCIEngine
	available  chan *UCIEngine // engines ready to be handed out
	maxEngines int             // Maximum number of engine to create
	enginePath string          // Path to the engine executable
	movetime   time.Duration   // Thinking time per move
	options    map[string]string
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewEnginePool creates a new engine pool
func NewEnginePool(
	enginePath string,
	maxEngines int,
	movetime time.Duration,
	options map[string]string,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		engines:    make(map[string]*UCIEngine),
		available:  make(chan *UCIEngine, maxEngines),
		maxEngines: maxEngines,
		enginePath: enginePath,
		movetime:   movetime,
		options:    options,
		logger:     logger,
	}
}

// Initialize creates the initial pool of engines
func (p *Pool) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.maxEngines; i++ {
		engine, err := NewUCIEngine(p.enginePath, p.logger)
		if err != nil {
			p.closeAll()
			return err
		}

		for name, value := range p.options {
			if err := engine.SetOption(name, value); err != nil {
				engine.Close()
				p.closeAll()
				return fmt.Errorf("setting option %s: %w", name, err)
			}
		}

		p.engines[engine.ID.String()] = engine
		p.available <- engine
	}

	p.logger.Info("Engine pool initialized", zap.Int("count", len(p.engines)))
	return nil
}

// GetEngine retrieves an available engine from the pool, waiting until ctx is done
func (p *Pool) GetEngine(ctx context.Context) (*UCIEngine, error) {
	select {
	case engine, ok := <-p.available:
		if !ok {
			return nil, ErrNoEngineAvailable
		}
		p.logger.Debug("Engine retrieved from pool", zap.String("engine_id", engine.ID.String()))
		return engine, nil

	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoEngineAvailable, ctx.Err())
	}
}

// ReturnEngine returns an engine to the pool
func (p *Pool) ReturnEngine(engine *UCIEngine) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, exists := p.engines[engine.ID.String()]; !exists {
		return
	}

	// Non-blocking send to available channel
	select {
	case p.available <- engine:
		p.logger.Debug("Engine returned to pool", zap.String("engine_id", engine.ID.String()))
	default:
		p.logger.Warn("Failed to return engine to pool, channel full",
			zap.String("engine_id", engine.ID.String()))
	}
}

// BestMove borrows an engine and asks it for a move in the given position
func (p *Pool) BestMove(ctx context.Context, fen string) (string, error) {
	engine, err := p.GetEngine(ctx)
	if err != nil {
		return "", err
	}

	move, err := engine.BestMove(ctx, fen, p.movetime)
	if engine.Unresponsive() {
		p.retire(engine)
	} else {
		p.ReturnEngine(engine)
	}

	return move, err
}

// retire drops an engine from the pool and closes it
func (p *Pool) retire(engine *UCIEngine) {
	p.mu.Lock()
	delete(p.engines, engine.ID.String())
	p.mu.Unlock()

	p.logger.Warn("Retiring unresponsive engine", zap.String("engine_id", engine.ID.String()))

	if err := engine.Close(); err != nil {
		p.logger.Debug("Error closing engine",
			zap.String("engine_id", engine.ID.String()),
			zap.Error(err))
	}
}

// Size returns the number of engines owned by the pool
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.engines)
}

// Shutdown closes all engines in the pool
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeAll()
	close(p.available)

	p.logger.Info("Engine pool shut down")
}

func (p *Pool) closeAll() {
drain:
	for {
		select {
		case <-p.available:
		default:
			break drain
		}
	}

	for id, engine := range p.engines {
		if err := engine.Close(); err != nil {
			p.logger.Debug("Error closing engine",
				zap.String("engine_id", id),
				zap.Error(err))
		}
	}

	p.engines = make(map[string]*UCIEngine)
}
