package utils

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"buscacliente/models"
)

// Scope values for the daily send cap.
const (
	CapScopeGlobal = "global"
	CapScopeTenant = "tenant"
)

// SendRateLimiter enforces the daily outbound cap by counting ledger rows
// sent within the current UTC calendar day. It re-checks the count on every
// reservation, so the cap survives process restarts, and serializes the
// read-then-decide window behind a mutex since the limiter is the one shared
// mutable resource between concurrent dispatches in a tick.
type SendRateLimiter struct {
	db    *gorm.DB
	limit int
	scope string

	mu sync.Mutex
}

func NewSendRateLimiter(db *gorm.DB, limit int, scope string) *SendRateLimiter {
	if scope != CapScopeTenant {
		scope = CapScopeGlobal
	}
	return &SendRateLimiter{db: db, limit: limit, scope: scope}
}

// TryReserve reports whether one more send is allowed right now. companyID
// is only consulted when the cap is tenant-scoped.
func (rl *SendRateLimiter) TryReserve(companyID uint) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sentToday(companyID) < int64(rl.limit)
}

// SentToday returns the number of sends counted against the cap so far.
func (rl *SendRateLimiter) SentToday(companyID uint) int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sentToday(companyID)
}

func (rl *SendRateLimiter) sentToday(companyID uint) int64 {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// sent_at is set once at dispatch and survives later status advances
	// (delivered, read), so it is the stable thing to count.
	query := rl.db.Model(&models.Message{}).
		Where("direction = ? AND sent_at IS NOT NULL AND sent_at >= ?", models.DirectionOutbound, dayStart)
	if rl.scope == CapScopeTenant {
		query = query.Where("company_id = ?", companyID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		// Deny on a read error; the next tick re-checks.
		return int64(rl.limit)
	}
	return count
}
