package models

import (
	"net"
	"strconv"
	"time"
)

// DMPolicy controls how inbound senders are admitted
type DMPolicy string

const (
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOpen      DMPolicy = "open"
)

// Endpoint is a mail server address with credentials
type Endpoint struct {
	Host   string
	Port   int
	Secure bool // implicit TLS; STARTTLS is required otherwise
	// Plaintext skips TLS entirely, for local bridges and test servers
	Plaintext bool
	User      string
	Password  string
}

// Addr returns host:port
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Account is the resolved per-run configuration of one email account
type Account struct {
	ID         string
	Name       string
	Enabled    bool
	Configured bool

	IMAP Endpoint
	SMTP Endpoint

	FromAddress string
	FromName    string

	PollInterval      time.Duration
	AllowFrom         []string
	DMPolicy          DMPolicy
	AttachmentDir     string
	MaxAttachmentSize int64
}

// Conversation holds threading metadata for one two-party thread
type Conversation struct {
	ThreadID      string
	LastMessageID string
	Subject       string
	Created       time.Time
	UpdatedAt     time.Time
}
