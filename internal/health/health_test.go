package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mixelka/emailchannel/pkg/models"
)

type staticStatus []models.AccountStatus

func (s staticStatus) Snapshots() []models.AccountStatus { return s }

func probe(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestChecker_Ready(t *testing.T) {
	accounts := staticStatus{
		{AccountID: "work", Enabled: true, Configured: true, State: "connected"},
		// disabled accounts never block readiness
		{AccountID: "old", Enabled: false, Configured: true, State: "failed"},
	}
	h := NewChecker(accounts, nil).Handler()

	assert.Equal(t, http.StatusOK, probe(t, h, "/live").Code)
	assert.Equal(t, http.StatusOK, probe(t, h, "/ready").Code)
}

func TestChecker_NotReadyWhenAccountFailed(t *testing.T) {
	accounts := staticStatus{
		{AccountID: "work", Enabled: true, Configured: true, State: "failed"},
	}
	h := NewChecker(accounts, nil).Handler()

	assert.Equal(t, http.StatusOK, probe(t, h, "/live").Code)

	rec := probe(t, h, "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "accounts failed: work")
}
