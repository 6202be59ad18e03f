package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"_type":"event","slug":"wired-002"}`)
	secret := "s3cret"

	tests := []struct {
		name   string
		secret string
		header string
		want   error
	}{
		{name: "sha256 prefixed", secret: secret, header: Sign(SHA256, secret, body)},
		{name: "sha1 prefixed", secret: secret, header: Sign(SHA1, secret, body)},
		{name: "bare sha256", secret: secret, header: strings.TrimPrefix(Sign(SHA256, secret, body), "sha256=")},
		{name: "rotation list", secret: secret, header: "sha256=00ff, " + Sign(SHA1, secret, body)},
		{name: "uppercase algorithm", secret: secret, header: "SHA256=" + strings.TrimPrefix(Sign(SHA256, secret, body), "sha256=")},
		{name: "missing", secret: secret, header: "", want: ErrMissing},
		{name: "wrong secret", secret: secret, header: Sign(SHA256, "other", body), want: ErrMismatch},
		{name: "unknown algorithm", secret: secret, header: "md5=abcd", want: ErrMalformed},
		{name: "not hex", secret: secret, header: "sha256=zz", want: ErrMalformed},
		{name: "no secret configured", secret: "", header: Sign(SHA256, secret, body), want: ErrNoSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, body, tt.header)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	header := Sign(SHA256, "k", []byte(`{"slug":"a"}`))
	assert.ErrorIs(t, Verify("k", []byte(`{"slug":"b"}`), header), ErrMismatch)
}
