// Package lease provides an in-process pipeline lease.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

// Memory is a mutex-guarded lease for single-process runs and tests
type Memory struct {
	mu      sync.Mutex
	name    string
	current *models.Lease
	now     func() time.Time
}

// NewMemory creates an unheld lease
func NewMemory(name string) *Memory {
	return &Memory{name: name, now: time.Now}
}

func (m *Memory) Acquire(ctx context.Context, ttl time.Duration) (*models.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.current != nil && !m.current.IsExpired(now) {
		return nil, interfaces.ErrLeaseHeld
	}

	m.current = &models.Lease{
		Name:       m.name,
		Token:      common.NewLeaseToken(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	granted := *m.current
	return &granted, nil
}

func (m *Memory) Release(ctx context.Context, lease *models.Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease != nil && m.current != nil && m.current.Token == lease.Token {
		m.current = nil
	}
	return nil
}

func (m *Memory) ForceRelease(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

func (m *Memory) Current(ctx context.Context) (*models.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.IsExpired(m.now()) {
		return nil, nil
	}
	held := *m.current
	return &held, nil
}
