package mailaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFrom(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   Address
		ok     bool
	}{
		{"quoted display name", `"Jane Doe" <jane@x.com>`, Address{"Jane Doe", "jane@x.com"}, true},
		{"unquoted display name", `Jane Doe <jane@x.com>`, Address{"Jane Doe", "jane@x.com"}, true},
		{"quoted name with comma", `"Doe, Jane" <Jane@X.com>`, Address{"Doe, Jane", "jane@x.com"}, true},
		{"bare address", `jane@x.com`, Address{UnknownName, "jane@x.com"}, true},
		{"angle brackets only", `<jane@x.com>`, Address{UnknownName, "jane@x.com"}, true},
		{"missing angle brackets", `Jane Doe jane@x.com`, Address{"Jane Doe", "jane@x.com"}, true},
		{"unterminated angle bracket", `Jane Doe <jane@x.com`, Address{"Jane Doe", "jane@x.com"}, true},
		{"encoded word", `=?utf-8?B?SmFuZSBEb2U=?= <jane@x.com>`, Address{"Jane Doe", "jane@x.com"}, true},
		{"plus address", `Billing <billing+acme@corp.example.org>`, Address{"Billing", "billing+acme@corp.example.org"}, true},
		{"no address", `Jane Doe`, Address{}, false},
		{"not an email", `Jane Doe <not-an-email>`, Address{}, false},
		{"empty", ``, Address{}, false},
		{"whitespace", "   ", Address{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFrom(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
