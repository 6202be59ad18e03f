package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSecret(t *testing.T) {
	cases := map[string]string{
		"  ABC123 \n":                                   "ABC123",
		"":                                              "",
		"https://wired.berlin/check?secret=s3cr3t":      "s3cr3t",
		"https://wired.berlin/check?code=c0de&x=1":      "c0de",
		"https://wired.berlin/t?s=short":                "short",
		"https://wired.berlin/t?ticket=tk":              "tk",
		"https://pretix.eu/wired/wired-002/ticket/abc/": "abc",
		"/tickets/xyz%2B1":                              "xyz+1",
		"?secret=qs-only":                               "qs-only",
		"https://wired.berlin/t?other=1":                "t",
		"wired.berlin/t/ABC123":                         "ABC123",
		"wired.berlin/check?secret=s3cr3t":              "s3cr3t",
		"pretix.eu/wired/wired-002/ticket/abc/":         "abc",
	}

	for in, want := range cases {
		assert.Equal(t, want, ExtractSecret(in), in)
	}
}
