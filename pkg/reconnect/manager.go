package reconnect

import (
	"sync"
	"sync/atomic"
	"time"

	"vanna/pkg/logger"
)

// Manager tracks reconnection state for a long-lived connection with
// exponential backoff and a circuit breaker. It is used by the broker
// push-feed link but is not tied to any transport.
type Manager struct {
	minBackoff        time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	maxRetries        int
	heartbeatTimeout  time.Duration
	circuitResetAfter time.Duration

	mu                  sync.RWMutex
	currentBackoff      time.Duration
	consecutiveFailures int
	totalReconnects     int
	circuitOpen         bool
	circuitOpenedAt     time.Time

	lastMessageTime atomic.Int64 // Unix timestamp in seconds

	logger *logger.Logger
}

// Config configures the reconnect manager
type Config struct {
	MinBackoff        time.Duration // Initial backoff (e.g. 1s)
	MaxBackoff        time.Duration // Max backoff (e.g. 5min)
	BackoffMultiplier float64       // Multiplier for exponential backoff (e.g. 2.0)
	MaxRetries        int           // Max consecutive retries before opening circuit (0 = unlimited)
	HeartbeatTimeout  time.Duration // Max time without messages before reconnect (e.g. 60s)
	CircuitResetAfter time.Duration // How long to wait before trying again after circuit opens (e.g. 5min)
}

// NewManager creates a new reconnect manager with sensible defaults
func NewManager(config Config, log *logger.Logger) *Manager {
	if config.MinBackoff == 0 {
		config.MinBackoff = 1 * time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 10
	}
	if config.HeartbeatTimeout == 0 {
		config.HeartbeatTimeout = 60 * time.Second
	}
	if config.CircuitResetAfter == 0 {
		config.CircuitResetAfter = 5 * time.Minute
	}

	return &Manager{
		minBackoff:        config.MinBackoff,
		maxBackoff:        config.MaxBackoff,
		backoffMultiplier: config.BackoffMultiplier,
		maxRetries:        config.MaxRetries,
		heartbeatTimeout:  config.HeartbeatTimeout,
		circuitResetAfter: config.CircuitResetAfter,
		currentBackoff:    config.MinBackoff,
		logger:            log,
	}
}

// RecordMessageReceived updates the last message timestamp.
// Call this every time a message is received from the connection.
func (m *Manager) RecordMessageReceived() {
	m.lastMessageTime.Store(time.Now().Unix())
}

// IsHealthy checks if the connection is healthy based on recent message activity
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.circuitOpen {
		return false
	}

	lastMsg := m.lastMessageTime.Load()
	if lastMsg == 0 {
		// No messages received yet - consider healthy (just connected)
		return true
	}

	sinceLast := time.Since(time.Unix(lastMsg, 0))
	if sinceLast > m.heartbeatTimeout {
		m.logger.Warnw("Connection appears dead - no messages received",
			"time_since_last_message", sinceLast,
			"heartbeat_timeout", m.heartbeatTimeout,
		)
		return false
	}

	return true
}

// ShouldRetry returns whether we should attempt reconnection
func (m *Manager) ShouldRetry() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.circuitOpen {
		return time.Since(m.circuitOpenedAt) >= m.circuitResetAfter
	}

	if m.maxRetries > 0 && m.consecutiveFailures >= m.maxRetries {
		return false
	}

	return true
}

// GetBackoff returns current backoff duration
func (m *Manager) GetBackoff() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentBackoff
}

// RecordFailure records a reconnection failure and updates backoff
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++

	newBackoff := time.Duration(float64(m.currentBackoff) * m.backoffMultiplier)
	if newBackoff > m.maxBackoff {
		newBackoff = m.maxBackoff
	}
	m.currentBackoff = newBackoff

	m.logger.Warnw("Reconnection failed",
		"consecutive_failures", m.consecutiveFailures,
		"next_backoff", m.currentBackoff,
	)

	if m.maxRetries > 0 && m.consecutiveFailures >= m.maxRetries {
		m.circuitOpen = true
		m.circuitOpenedAt = time.Now()

		m.logger.Errorw("Circuit breaker opened - too many consecutive failures",
			"consecutive_failures", m.consecutiveFailures,
			"max_retries", m.maxRetries,
			"circuit_reset_after", m.circuitResetAfter,
		)
	}
}

// RecordSuccess records a successful reconnection
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.logger.Infow("Reconnection successful, resetting backoff",
			"previous_consecutive_failures", m.consecutiveFailures,
		)
	}

	m.currentBackoff = m.minBackoff
	m.consecutiveFailures = 0
	m.totalReconnects++

	if m.circuitOpen {
		m.logger.Infow("Circuit breaker closed - connection restored",
			"total_reconnects", m.totalReconnects,
		)
		m.circuitOpen = false
		m.circuitOpenedAt = time.Time{}
	}

	m.lastMessageTime.Store(time.Now().Unix())
}

// TotalReconnects returns the number of successful reconnections
func (m *Manager) TotalReconnects() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalReconnects
}
