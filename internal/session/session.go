// Package session drives one transmission from connect to teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/config"
	"firestige.xyz/mediatx/internal/core"
	"firestige.xyz/mediatx/internal/sender"
	"firestige.xyz/mediatx/internal/source"
	"firestige.xyz/mediatx/internal/transport"
)

// State is a session lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateConnected     State = "connected"
	StateRunning       State = "running"
	StateShuttingDown  State = "shutting-down"
	// StateClosed is terminal.
	StateClosed State = "closed"
)

// Dialer opens the connection to the media proxy.
type Dialer func(ctx context.Context, opts transport.Options) (transport.Connection, error)

// OpenFunc opens the frame source.
type OpenFunc func(cfg config.InputConfig, clk clock.PassiveClock) (source.Source, error)

// Options overrides session collaborators. Zero values use the real ones.
type Options struct {
	Dial     Dialer
	Open     OpenFunc
	Clock    clock.Clock
	Observer sender.Observer
	// Signals cancel the run; nil means SIGINT and SIGTERM.
	Signals []os.Signal
}

// Session owns the connection and the input of one run.
type Session struct {
	ID  string
	cfg *config.Config

	dial    Dialer
	open    OpenFunc
	clock   clock.Clock
	obs     sender.Observer
	signals []os.Signal
	log     *logrus.Entry

	mu    sync.RWMutex
	state State
	conn  transport.Connection
	src   source.Source

	teardown sync.Once
	closeErr error
}

func dialPool(ctx context.Context, opts transport.Options) (transport.Connection, error) {
	return transport.Dial(ctx, opts)
}

// New creates a session in the Uninitialized state. cfg must be validated.
func New(cfg *config.Config, opts Options) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:      id,
		cfg:     cfg,
		dial:    opts.Dial,
		open:    opts.Open,
		clock:   opts.Clock,
		obs:     opts.Observer,
		signals: opts.Signals,
		state:   StateUninitialized,
		log: logrus.WithFields(logrus.Fields{
			"session": id,
			"payload": cfg.Payload.Type,
		}),
	}
	if s.dial == nil {
		s.dial = dialPool
	}
	if s.open == nil {
		s.open = source.Open
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.signals == nil {
		s.signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return s
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"from": prev, "to": st}).Debug("session state changed")
}

// Connect dials the transport. A failed connect leaves nothing to roll back
// and the session stays Uninitialized.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
	case StateClosed, StateShuttingDown:
		s.mu.Unlock()
		return core.ErrSessionClosed
	default:
		s.mu.Unlock()
		return fmt.Errorf("session: connect in state %s", s.state)
	}
	s.mu.Unlock()

	opts, err := transport.NewOptions(s.cfg, s.ID)
	if err != nil {
		return err
	}
	opts.Clock = s.clock
	conn, err := s.dial(ctx, opts)
	if err != nil {
		s.log.WithError(err).Error("connect failed")
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateConnected)
	s.log.WithFields(logrus.Fields{
		"protocol":   opts.Protocol,
		"remote":     opts.Remote.HostPort(),
		"frame_size": opts.FrameSize,
	}).Info("connected")
	return nil
}

// Run connects if needed, opens the input and transmits until a stop
// condition, then tears down. The returned error is non-nil for connect
// failure, input open failure and loop-fatal stops. A cancellation or a
// signal is a clean stop.
func (s *Session) Run(ctx context.Context) (sender.Result, error) {
	if st := s.State(); st == StateClosed || st == StateShuttingDown {
		return sender.Result{}, core.ErrSessionClosed
	}

	// Signals stay trapped until teardown, linger drain included, returns.
	ctx, stop := signal.NotifyContext(ctx, s.signals...)
	defer stop()

	if s.State() == StateUninitialized {
		if err := s.Connect(ctx); err != nil {
			return sender.Result{}, err
		}
	}
	defer s.Close()

	src, err := s.open(s.cfg.Input, s.clock)
	if err != nil {
		s.log.WithError(err).Error("open input failed")
		return sender.Result{Reason: sender.StopSourceFailed, Err: err}, err
	}
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()

	lopts, err := sender.OptionsFrom(s.cfg)
	if err != nil {
		return sender.Result{Reason: sender.StopBufferFailed, Err: err}, err
	}
	lopts.Clock = s.clock
	lopts.Observer = s.obs
	lopts.Log = s.log

	s.setState(StateRunning)
	res := sender.New(s.conn, src, lopts).Run(ctx)

	entry := s.log.WithFields(logrus.Fields{
		"reason":  res.Reason,
		"frames":  res.Frames,
		"bytes":   res.Bytes,
		"replays": res.Replays,
		"elapsed": res.Elapsed,
	})
	if res.Reason.Fatal() {
		entry.WithError(res.Err).Error("transmission failed")
		return res, res.Err
	}
	entry.Info("transmission stopped")
	return res, nil
}

// Close tears the session down exactly once: the input is closed, queued
// frames drain for the linger period and the connection is destroyed.
// Later calls return the first result.
func (s *Session) Close() error {
	s.teardown.Do(func() {
		s.setState(StateShuttingDown)
		s.mu.RLock()
		src, conn := s.src, s.conn
		s.mu.RUnlock()

		var errs []error
		if src != nil {
			if err := src.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close input: %w", err))
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.log.WithError(s.closeErr).Warn("teardown finished with errors")
		}
		s.setState(StateClosed)
	})
	return s.closeErr
}
