package models

import "time"

// AccountStatus is an observability snapshot of one account
type AccountStatus struct {
	AccountID      string    `json:"accountId"`
	Name           string    `json:"name,omitempty"`
	Enabled        bool      `json:"enabled"`
	Configured     bool      `json:"configured"`
	FromAddress    string    `json:"fromAddress,omitempty"`
	Running        bool      `json:"running"`
	State          string    `json:"state"`
	LastStartAt    time.Time `json:"lastStartAt,omitempty"`
	LastStopAt     time.Time `json:"lastStopAt,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
	LastInboundAt  time.Time `json:"lastInboundAt,omitempty"`
	LastOutboundAt time.Time `json:"lastOutboundAt,omitempty"`
}
