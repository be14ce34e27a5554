package config

import (
	"strings"

	"github.com/mixelka/emailchannel/pkg/models"
)

// ProviderHint holds the well-known servers of a mail provider
type ProviderHint struct {
	IMAP models.Endpoint
	SMTP models.Endpoint
}

func hint(imapHost, smtpHost string) ProviderHint {
	return ProviderHint{
		IMAP: models.Endpoint{Host: imapHost, Port: defaultIMAPPort, Secure: true},
		SMTP: models.Endpoint{Host: smtpHost, Port: defaultSMTPPort},
	}
}

var knownProviders = map[string]ProviderHint{
	"gmail.com":      hint("imap.gmail.com", "smtp.gmail.com"),
	"googlemail.com": hint("imap.gmail.com", "smtp.gmail.com"),
	"outlook.com":    hint("outlook.office365.com", "smtp.office365.com"),
	"hotmail.com":    hint("outlook.office365.com", "smtp.office365.com"),
	"live.com":       hint("outlook.office365.com", "smtp.office365.com"),
	"yahoo.com":      hint("imap.mail.yahoo.com", "smtp.mail.yahoo.com"),
	"icloud.com":     hint("imap.mail.me.com", "smtp.mail.me.com"),
	"me.com":         hint("imap.mail.me.com", "smtp.mail.me.com"),
	"aol.com":        hint("imap.aol.com", "smtp.aol.com"),
	"zoho.com":       hint("imap.zoho.com", "smtp.zoho.com"),
	"fastmail.com":   hint("imap.fastmail.com", "smtp.fastmail.com"),
	"gmx.com":        hint("imap.gmx.com", "mail.gmx.com"),
	"gmx.de":         hint("imap.gmx.net", "mail.gmx.net"),
	"web.de":         hint("imap.web.de", "smtp.web.de"),
	"yandex.ru":      hint("imap.yandex.ru", "smtp.yandex.ru"),
	"yandex.com":     hint("imap.yandex.com", "smtp.yandex.com"),
	"mail.ru":        hint("imap.mail.ru", "smtp.mail.ru"),
	"proton.me":      {IMAP: models.Endpoint{Host: "127.0.0.1", Port: 1143}, SMTP: models.Endpoint{Host: "127.0.0.1", Port: 1025}},
	"protonmail.com": {IMAP: models.Endpoint{Host: "127.0.0.1", Port: 1143}, SMTP: models.Endpoint{Host: "127.0.0.1", Port: 1025}},
}

// SuggestEndpoints guesses the servers for an address. Unknown domains get
// the conventional imap. and smtp. hosts; ok is false for those.
func SuggestEndpoints(address string) (ProviderHint, bool) {
	domain := DomainOf(address)
	if domain == "" {
		return ProviderHint{}, false
	}
	if h, ok := knownProviders[domain]; ok {
		return h, true
	}
	return hint("imap."+domain, "smtp."+domain), false
}

// DomainOf returns the lowercased domain of an address
func DomainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(address[at+1:]))
}
