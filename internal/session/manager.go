// Package session owns the single live browser session of a crawl and
// recreates it on demand.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
	"github.com/JakeFAU/scholar-citation-crawler/internal/metrics"
)

// Manager hands out at most one live session at a time.
type Manager struct {
	factory  crawler.SessionFactory
	clock    crawler.Clock
	cooldown time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	current  crawler.Session
	recycles int
}

// NewManager creates a manager. cooldown is the pause between tearing a
// session down and creating its replacement.
func NewManager(factory crawler.SessionFactory, clock crawler.Clock, cooldown time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		factory:  factory,
		clock:    clock,
		cooldown: cooldown,
		logger:   logger.Named("session"),
	}
}

// Acquire returns the live session, creating one if none exists. A creation
// failure wraps crawler.ErrSessionUnavailable.
func (m *Manager) Acquire(ctx context.Context) (crawler.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current, nil
	}
	return m.createLocked(ctx)
}

// Recycle tears down the current session, waits for the cool-down, and
// creates a replacement.
func (m *Manager) Recycle(ctx context.Context) (crawler.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()
	m.recycles++
	metrics.ObserveRecycle()
	m.logger.Info("Recycling browser session", zap.Int("recycles", m.recycles), zap.Duration("cooldown", m.cooldown))
	if err := m.clock.Sleep(ctx, m.cooldown); err != nil {
		return nil, err
	}
	return m.createLocked(ctx)
}

// Release tears down the current session, if any.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Recycles reports how many times Recycle has run.
func (m *Manager) Recycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recycles
}

func (m *Manager) createLocked(ctx context.Context) (crawler.Session, error) {
	sess, err := m.factory.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrSessionUnavailable, err)
	}
	m.current = sess
	m.logger.Debug("Browser session started")
	return sess, nil
}

func (m *Manager) closeLocked() {
	if m.current == nil {
		return
	}
	if err := m.current.Close(); err != nil {
		m.logger.Warn("Failed to close browser session", zap.Error(err))
	}
	m.current = nil
}
