// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cancel implements the two-stage ("double tap") cancellation state
// machine: the first interrupt requests a graceful shutdown and arms a
// watchdog; the second interrupt, or watchdog expiry, forces the process to
// exit immediately with code 130.
package cancel

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"
)

// ExitCodeForceQuit is 128 + SIGINT's signal number, per the spec's exit
// code mapping for user cancellation.
const ExitCodeForceQuit = 130

// State is the cancellation manager's current lifecycle stage.
type State string

const (
	StateIdle      State = "idle"
	StateGraceful  State = "graceful"
	StateForced    State = "forced"
	StateCompleted State = "completed"
)

// Manager is a process-wide cancellation state machine. It must be
// constructed once via New and Setup, then shared by reference; it is safe
// for concurrent use.
type Manager struct {
	mu             sync.Mutex
	state          State
	cancelCount    int
	gracefulTimeout time.Duration
	onGraceful     func()
	onForce        func()
	onCleanup      func()
	logger         *slog.Logger
	sigCh          chan os.Signal
	watchdogStop   chan struct{}
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithGracefulTimeout overrides the default 10s watchdog timeout.
func WithGracefulTimeout(d time.Duration) Option {
	return func(m *Manager) { m.gracefulTimeout = d }
}

// WithCallbacks registers the cleanup, graceful, and force callbacks, each
// optional. Callbacks never run on the signal-handling goroutine itself.
func WithCallbacks(onCleanup, onGraceful, onForce func()) Option {
	return func(m *Manager) {
		m.onCleanup = onCleanup
		m.onGraceful = onGraceful
		m.onForce = onForce
	}
}

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New constructs a Manager in the idle state. Call Setup to install signal
// handlers.
func New(opts ...Option) *Manager {
	m := &Manager{
		state:           StateIdle,
		gracefulTimeout: 10 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Setup installs the interrupt (and, on non-Windows platforms, termination)
// signal handlers. It must be called exactly once before the process enters
// its main work loop.
func (m *Manager) Setup() {
	sigs := []os.Signal{os.Interrupt}
	if runtime.GOOS != "windows" {
		sigs = append(sigs, syscall.SIGTERM)
	}
	m.sigCh = make(chan os.Signal, 2)
	signal.Notify(m.sigCh, sigs...)
	go func() {
		for range m.sigCh {
			m.handleSignal()
		}
	}()
}

// handleSignal is the only code that runs directly from the signal
// delivery goroutine; it must never block on a callback — it only flips
// state and dispatches work onto separate goroutines.
func (m *Manager) handleSignal() {
	m.mu.Lock()
	m.cancelCount++
	count := m.cancelCount
	m.mu.Unlock()

	if count == 1 {
		m.mu.Lock()
		m.state = StateGraceful
		m.mu.Unlock()
		m.logger.Warn("cancel.graceful", "message", "interrupt received, finishing current unit of work")

		go m.runGracefulCallbacks()
		go m.watchdog()
		return
	}

	m.forceExit()
}

func (m *Manager) runGracefulCallbacks() {
	if m.onCleanup != nil {
		m.onCleanup()
	}
	if m.onGraceful != nil {
		m.onGraceful()
	}
}

func (m *Manager) watchdog() {
	stop := make(chan struct{})
	m.mu.Lock()
	if m.state == StateCompleted {
		m.mu.Unlock()
		return
	}
	m.watchdogStop = stop
	m.mu.Unlock()

	select {
	case <-time.After(m.gracefulTimeout):
		m.logger.Error("cancel.watchdog_expired", "timeout", m.gracefulTimeout)
		m.forceExit()
	case <-stop:
	}
}

func (m *Manager) forceExit() {
	m.mu.Lock()
	alreadyForced := m.state == StateForced
	m.state = StateForced
	m.mu.Unlock()
	if alreadyForced {
		return
	}

	fmt.Fprintln(os.Stderr, "\nForce quitting...")
	if m.onForce != nil {
		done := make(chan struct{})
		go func() {
			m.onForce()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}
	os.Exit(ExitCodeForceQuit)
}

// MarkCompleted transitions graceful -> completed and disarms the watchdog.
// The driver must call this after a clean graceful save, or the watchdog
// will force-exit the process once its timeout elapses.
func (m *Manager) MarkCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateGraceful {
		m.state = StateCompleted
	}
	if m.watchdogStop != nil {
		select {
		case <-m.watchdogStop:
		default:
			close(m.watchdogStop)
		}
	}
}

// IsCancelled reports whether a graceful (or forced) cancellation has been
// requested. Drivers poll this between batches.
func (m *Manager) IsCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateGraceful || m.state == StateForced
}

// IsForced reports whether the forced stage has been reached. Blocking
// retry loops (e.g. checkpoint save retries) poll this to abort early.
func (m *Manager) IsForced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateForced
}

// CurrentState returns the manager's current lifecycle stage.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the manager to its idle state and stops signal delivery.
// Intended for test isolation between cases exercising global state.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sigCh != nil {
		signal.Stop(m.sigCh)
	}
	m.state = StateIdle
	m.cancelCount = 0
}
