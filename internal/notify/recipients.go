package notify

import (
	"fmt"
	"net/mail"
	"strings"

	"queue-monitor/internal/models"
)

// ValidateRecipients fails on the first address that is not a bare,
// well-formed email address.
func ValidateRecipients(recipients []string) error {
	for _, r := range recipients {
		if !ValidEmail(r) {
			return fmt.Errorf("%w: invalid notification email %q", models.ErrValidation, r)
		}
	}
	return nil
}

// ValidEmail accepts local@domain.tld only. Display names, comments and
// single-label domains are rejected.
func ValidEmail(addr string) bool {
	if addr == "" || strings.TrimSpace(addr) != addr {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return false
	}
	at := strings.LastIndex(addr, "@")
	domain := addr[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	return !strings.Contains(domain, "..")
}
