// Package health serves liveness and readiness probes for the email channel.
package health

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	maxGoroutines   = 1000
	databaseTimeout = 2 * time.Second

	stateFailed = "failed"
)

// StatusSource lists the current account snapshots
type StatusSource interface {
	Snapshots() []models.AccountStatus
}

// Checker wraps a healthcheck handler
type Checker struct {
	health healthcheck.Handler
}

// NewChecker registers the probes. db may be nil when no database is used.
func NewChecker(accounts StatusSource, db *sql.DB) *Checker {
	c := &Checker{health: healthcheck.NewHandler()}

	c.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	c.health.AddReadinessCheck("accounts", AccountsCheck(accounts))
	if db != nil {
		c.health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(db, databaseTimeout))
	}

	return c
}

// Handler serves /live and /ready
func (c *Checker) Handler() http.Handler {
	return c.health
}

// AccountsCheck fails when an enabled, configured account has given up
func AccountsCheck(accounts StatusSource) healthcheck.Check {
	return func() error {
		var failed []string
		for _, s := range accounts.Snapshots() {
			if s.Enabled && s.Configured && s.State == stateFailed {
				failed = append(failed, s.AccountID)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("accounts failed: %s", strings.Join(failed, ", "))
		}
		return nil
	}
}
