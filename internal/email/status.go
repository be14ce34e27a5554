package email

import (
	"sort"
	"sync"

	"github.com/mixelka/emailchannel/pkg/models"
)

// StatusSink receives account status changes
type StatusSink interface {
	Update(accountID string, fn func(*models.AccountStatus))
}

// StatusRegistry is an in-memory StatusSink
type StatusRegistry struct {
	mu       sync.RWMutex
	statuses map[string]*models.AccountStatus
}

// NewStatusRegistry creates an empty registry
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{statuses: make(map[string]*models.AccountStatus)}
}

// SetStatus replaces the status of an account
func (r *StatusRegistry) SetStatus(s models.AccountStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[s.AccountID] = &s
}

// Update applies fn to the stored status of accountID
func (r *StatusRegistry) Update(accountID string, fn func(*models.AccountStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.statuses[accountID]
	if !ok {
		s = &models.AccountStatus{AccountID: accountID, State: string(StateDisconnected)}
		r.statuses[accountID] = s
	}
	fn(s)
}

// Status returns the status of accountID
func (r *StatusRegistry) Status(accountID string) (models.AccountStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.statuses[accountID]
	if !ok {
		return models.AccountStatus{}, false
	}
	return *s, true
}

// All returns every known status ordered by account id
func (r *StatusRegistry) All() []models.AccountStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AccountStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
