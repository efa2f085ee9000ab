package models

import "time"

// Lease is a granted hold on the process lock
type Lease struct {
	Name       string    `json:"name" badgerhold:"key"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the lease can be reclaimed at now
func (l *Lease) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
