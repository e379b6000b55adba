// Package engine drives external UCI chess engines that play for a solo player
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 5 * time.Second
	quitTimeout      = 2 * time.Second
	stopTimeout      = time.Second
)

var (
	// ErrEngineExited is returned when the engine process is gone
	ErrEngineExited = errors.New("engine process exited")
	// ErrNoMove is returned when the engine has no legal move to offer
	ErrNoMove = errors.New("engine returned no move")
)

// UCIEngine represents a UCI-compatible chess engine
type UCIEngine struct {
	ID uuid.UUID

	cmd *exec.Cmd

	stdinPipe io.WriteCloser
	reader    *bufio.Reader

	writeMu  sync.Mutex // serializes writes to stdin
	searchMu sync.Mutex // one search at a time

	uciOK        chan struct{}
	readyOK      chan struct{}
	bestMoveChan chan string
	exited       chan struct{}
	closeOnce    sync.Once

	unresponsive atomic.Bool // a cancelled search never answered stop

	logger *zap.Logger
}

// NewUCIEngine starts the engine process and returns a UCIEngine instance once
// it has answered the uci and isready handshakes.
// enginePath is the path to the engine executable (e.g. "stockfish")
func NewUCIEngine(enginePath string, logger *zap.Logger) (*UCIEngine, error) {
	cmd := exec.Command(enginePath)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("StdoutPipe error: %w", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("StdinPipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting engine: %w", err)
	}

	e := &UCIEngine{
		ID:           uuid.New(),
		cmd:          cmd,
		stdinPipe:    stdin,
		reader:       bufio.NewReader(stdout),
		uciOK:        make(chan struct{}, 1),
		readyOK:      make(chan struct{}, 1),
		bestMoveChan: make(chan string, 1),
		exited:       make(chan struct{}),
		logger:       logger.With(zap.String("engine_path", enginePath)),
	}

	go e.readLoop()

	if err := e.handshake("uci", e.uciOK); err != nil {
		e.Close()
		return nil, fmt.Errorf("error during uci handshake: %w", err)
	}

	if err := e.IsReady(); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func (e *UCIEngine) readLoop() {
	defer close(e.exited)

	for {
		line, err := e.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				e.logger.Debug("engine closed stdout", zap.String("engine_id", e.ID.String()))
			} else {
				e.logger.Error("error reading engine output", zap.Error(err))
			}
			return
		}
		line = strings.TrimSpace(line)

		e.logger.Debug("ENGINE>", zap.String("line", line))

		switch {
		case line == "uciok":
			signal(e.uciOK)
		case line == "readyok":
			signal(e.readyOK)
		case strings.HasPrefix(line, "bestmove"):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				// Send bestMove into the channel without blocking.
				select {
				case e.bestMoveChan <- fields[1]:
				default:
				}
			}
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (e *UCIEngine) handshake(command string, ack <-chan struct{}) error {
	if err := e.writeCommand(command); err != nil {
		return err
	}

	select {
	case <-ack:
		return nil
	case <-e.exited:
		return ErrEngineExited
	case <-time.After(handshakeTimeout):
		return fmt.Errorf("engine did not acknowledge %q within %s", command, handshakeTimeout)
	}
}

func (e *UCIEngine) writeCommand(cmd string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	_, err := io.WriteString(e.stdinPipe, cmd+"\n")
	return err
}

// SendCommand writes a raw UCI command to the engine
func (e *UCIEngine) SendCommand(cmd string) error {
	return e.writeCommand(cmd)
}

// IsReady waits for the engine to answer isready
func (e *UCIEngine) IsReady() error {
	if err := e.handshake("isready", e.readyOK); err != nil {
		return fmt.Errorf("error during isready handshake: %w", err)
	}
	return nil
}

// SetOption sends a setoption command
func (e *UCIEngine) SetOption(name, value string) error {
	return e.writeCommand(fmt.Sprintf("setoption name %s value %s", name, value))
}

// BestMove asks the engine for a move in the given position, thinking for at
// most movetime. The move is returned in UCI notation (e.g. "e2e4").
func (e *UCIEngine) BestMove(ctx context.Context, fen string, movetime time.Duration) (string, error) {
	e.searchMu.Lock()
	defer e.searchMu.Unlock()

	// Drop a result left behind by a cancelled search.
	select {
	case <-e.bestMoveChan:
	default:
	}

	if err := e.writeCommand("position fen " + fen); err != nil {
		return "", fmt.Errorf("engine command error: %w", err)
	}

	if err := e.writeCommand(fmt.Sprintf("go movetime %d", movetime.Milliseconds())); err != nil {
		return "", fmt.Errorf("engine command error: %w", err)
	}

	select {
	case move := <-e.bestMoveChan:
		if move == "(none)" || move == "0000" {
			return "", ErrNoMove
		}
		return move, nil
	case <-e.exited:
		return "", ErrEngineExited
	case <-ctx.Done():
		e.stopSearch()
		return "", ctx.Err()
	}
}

// stopSearch interrupts the running search and consumes the bestmove it
// still owes, so the next search cannot pick it up.
func (e *UCIEngine) stopSearch() {
	if err := e.writeCommand("stop"); err != nil {
		e.unresponsive.Store(true)
		return
	}

	select {
	case <-e.bestMoveChan:
	case <-e.exited:
	case <-time.After(stopTimeout):
		e.logger.Warn("engine ignored stop", zap.String("engine_id", e.ID.String()))
		e.unresponsive.Store(true)
	}
}

// Unresponsive reports whether the engine may still owe an answer to an
// abandoned search. Such an engine must not be reused.
func (e *UCIEngine) Unresponsive() bool {
	return e.unresponsive.Load()
}

// Close asks the engine to quit and waits for the process to exit
func (e *UCIEngine) Close() error {
	var err error

	e.closeOnce.Do(func() {
		_ = e.writeCommand("quit")
		_ = e.stdinPipe.Close()

		select {
		case <-e.exited:
		case <-time.After(quitTimeout):
			e.logger.Warn("engine did not quit, killing", zap.String("engine_id", e.ID.String()))
			_ = e.cmd.Process.Kill()
			<-e.exited
		}

		err = e.cmd.Wait()
	})

	return err
}
