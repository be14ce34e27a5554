package config

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mixelka/emailchannel/pkg/models"
)

const (
	// DefaultAccountID is used for a single-account section
	DefaultAccountID = "default"

	sectionKey = "email"

	defaultIMAPPort          = 993
	defaultSMTPPort          = 587
	defaultPollInterval      = 30 * time.Second
	minPollInterval          = time.Second
	defaultMaxAttachmentSize = 10 * 1024 * 1024
	defaultFromName          = "OpenClaw"
)

var (
	// ErrAccountNotFound is returned for an unknown account id
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotConfigured is returned for an account missing required fields
	ErrNotConfigured = errors.New("account not configured")

	// ErrInvalidAccounts is returned for an accounts document with bad values
	ErrInvalidAccounts = errors.New("invalid accounts config")
)

type endpointSection struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Secure    *bool  `mapstructure:"secure"`
	Plaintext bool   `mapstructure:"plaintext"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
}

type accountSection struct {
	Name              string           `mapstructure:"name"`
	Enabled           *bool            `mapstructure:"enabled"`
	IMAP              *endpointSection `mapstructure:"imap"`
	SMTP              *endpointSection `mapstructure:"smtp"`
	FromAddress       string           `mapstructure:"fromAddress"`
	FromName          string           `mapstructure:"fromName"`
	PollInterval      time.Duration    `mapstructure:"pollInterval"`
	AllowFrom         []string         `mapstructure:"allowFrom"`
	DMPolicy          string           `mapstructure:"dmPolicy"`
	AttachmentDir     string           `mapstructure:"attachmentDir"`
	MaxAttachmentSize int64            `mapstructure:"maxAttachmentSize"`
}

type channelSection struct {
	accountSection `mapstructure:",squash"`
	Accounts       map[string]accountSection `mapstructure:"accounts"`
	DefaultAccount string                    `mapstructure:"defaultAccount"`
}

// Accounts resolves email accounts from the "email" section of a config file.
//
// The section either holds an "accounts" map keyed by account id, or
// describes a single account that gets the id "default".
type Accounts struct {
	section channelSection
}

// LoadAccounts reads the accounts file at path (YAML, JSON or TOML)
func LoadAccounts(path string) (*Accounts, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	return NewAccounts(v)
}

// ParseAccounts reads an accounts document of the given format
func ParseAccounts(r io.Reader, format string) (*Accounts, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return NewAccounts(v)
}

// NewAccounts decodes the accounts section of v
func NewAccounts(v *viper.Viper) (*Accounts, error) {
	var s channelSection
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		millisecondsHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalKey(sectionKey, &s, hooks); err != nil {
		return nil, fmt.Errorf("failed to decode %q section: %w", sectionKey, err)
	}

	if err := checkPollInterval("", s.PollInterval); err != nil {
		return nil, err
	}
	for id, sec := range s.Accounts {
		if err := checkPollInterval(id, sec.PollInterval); err != nil {
			return nil, err
		}
	}
	return &Accounts{section: s}, nil
}

// millisecondsHook reads bare numbers given for a duration as milliseconds,
// so "pollInterval: 30000" means 30s. Strings with a unit ("1m") are left to
// the standard duration hook.
func millisecondsHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))

	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}

		v := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(v.Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(v.Uint()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(v.Float() * float64(time.Millisecond)), nil
		case reflect.String:
			if ms, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64); err == nil {
				return time.Duration(ms) * time.Millisecond, nil
			}
		}
		return data, nil
	}
}

func checkPollInterval(id string, d time.Duration) error {
	if d <= 0 || d >= minPollInterval {
		return nil
	}
	if id == "" {
		id = DefaultAccountID
	}
	return fmt.Errorf("%w: %s: pollInterval %s is below %s", ErrInvalidAccounts, id, d, minPollInterval)
}

// ListAccountIDs returns the configured account ids in sorted order
func (a *Accounts) ListAccountIDs() []string {
	if len(a.section.Accounts) > 0 {
		ids := make([]string, 0, len(a.section.Accounts))
		for id := range a.section.Accounts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}
	if a.section.FromAddress != "" || a.section.IMAP != nil {
		return []string{DefaultAccountID}
	}
	return nil
}

// DefaultAccountID returns the account used when none is named
func (a *Accounts) DefaultAccountID() string {
	ids := a.ListAccountIDs()
	if def := strings.ToLower(a.section.DefaultAccount); def != "" {
		for _, id := range ids {
			if id == def {
				return id
			}
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return DefaultAccountID
}

// ResolveAccount returns account id with defaults applied
func (a *Accounts) ResolveAccount(id string) (models.Account, error) {
	sec, ok := a.lookup(id)
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	acc := models.Account{
		ID:                id,
		Name:              sec.Name,
		Enabled:           sec.Enabled == nil || *sec.Enabled,
		IMAP:              resolveEndpoint(sec.IMAP, defaultIMAPPort, true),
		SMTP:              resolveEndpoint(sec.SMTP, defaultSMTPPort, false),
		FromAddress:       strings.TrimSpace(sec.FromAddress),
		FromName:          sec.FromName,
		PollInterval:      sec.PollInterval,
		AllowFrom:         sec.AllowFrom,
		DMPolicy:          models.DMPolicy(strings.ToLower(sec.DMPolicy)),
		AttachmentDir:     sec.AttachmentDir,
		MaxAttachmentSize: sec.MaxAttachmentSize,
	}
	if acc.Name == "" {
		acc.Name = id
	}
	if acc.FromName == "" {
		acc.FromName = defaultFromName
	}
	if acc.PollInterval <= 0 {
		acc.PollInterval = defaultPollInterval
	}
	if acc.DMPolicy == "" {
		acc.DMPolicy = models.DMPolicyAllowlist
	}
	if acc.MaxAttachmentSize <= 0 {
		acc.MaxAttachmentSize = defaultMaxAttachmentSize
	}

	acc.Configured = acc.IMAP.Host != "" && acc.IMAP.User != "" &&
		acc.SMTP.Host != "" && acc.SMTP.User != "" &&
		acc.FromAddress != ""

	return acc, nil
}

func (a *Accounts) lookup(id string) (accountSection, bool) {
	if len(a.section.Accounts) > 0 {
		sec, ok := a.section.Accounts[strings.ToLower(id)]
		return sec, ok
	}
	if id == DefaultAccountID && (a.section.FromAddress != "" || a.section.IMAP != nil) {
		return a.section.accountSection, true
	}
	return accountSection{}, false
}

func resolveEndpoint(sec *endpointSection, defaultPort int, defaultSecure bool) models.Endpoint {
	if sec == nil {
		return models.Endpoint{Port: defaultPort, Secure: defaultSecure}
	}

	ep := models.Endpoint{
		Host:      strings.TrimSpace(sec.Host),
		Port:      sec.Port,
		Secure:    defaultSecure,
		Plaintext: sec.Plaintext,
		User:      strings.TrimSpace(sec.User),
		Password:  sec.Password,
	}
	if ep.Port == 0 {
		ep.Port = defaultPort
	}
	if sec.Secure != nil {
		ep.Secure = *sec.Secure
	}
	if ep.Plaintext {
		ep.Secure = false
	}
	return ep
}
