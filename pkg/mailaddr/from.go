// Package mailaddr extracts the sender identity from a raw "From" header value.
package mailaddr

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// UnknownName is used when the header carries an address but no display name.
const UnknownName = "Unknown"

// Address is a parsed sender. Email is always lower-cased.
type Address struct {
	Name  string
	Email string
}

// loosePattern accepts `optional-quoted-display-name <email>` as well as the
// malformed variants Gmail occasionally returns (missing angle brackets,
// stray quotes) that the RFC 5322 parser rejects.
var loosePattern = regexp.MustCompile(`(?:"?([^"<]*?)"?\s+)?<?([\w.+\-]+@[\w\-]+(?:\.[\w\-]+)+)>?`)

// ParseFrom returns the sender of a From header. ok is false when no email
// address can be found.
func ParseFrom(header string) (Address, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Address{}, false
	}

	if addr, err := mail.ParseAddress(header); err == nil && addr != nil && addr.Address != "" {
		return newAddress(addr.Name, addr.Address), true
	}

	m := loosePattern.FindStringSubmatch(header)
	if m == nil || m[2] == "" {
		return Address{}, false
	}
	return newAddress(m[1], m[2]), true
}

func newAddress(name, email string) Address {
	name = strings.TrimSpace(strings.Trim(strings.TrimSpace(name), `"'`))
	if name == "" {
		name = UnknownName
	}
	return Address{
		Name:  name,
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
}
