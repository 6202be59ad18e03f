package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndAuthenticate(t *testing.T) {
	a := New("secret", time.Hour)

	tok, exp, err := a.Issue(Identity{Subject: "u1", Email: "door@wired.berlin", Role: RoleStaff})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	id, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, id.Role)
	assert.True(t, id.Has(RoleStaff, RoleAdmin))
	assert.False(t, id.Has(RoleAdmin))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: tok})

	id, err = a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.Subject)
}

func TestAuthenticate_Failures(t *testing.T) {
	a := New("secret", time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrNoSession)

	other, _, err := New("other", time.Hour).Issue(Identity{Subject: "u1", Role: RoleAdmin})
	require.NoError(t, err)

	r.Header.Set("Authorization", "Bearer "+other)
	_, err = a.Authenticate(r)
	require.ErrorIs(t, err, ErrInvalidSession)

	expired := New("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(Identity{Subject: "u1", Role: RoleAdmin})
	require.NoError(t, err)

	r.Header.Set("Authorization", "Bearer "+old)
	_, err = a.Authenticate(r)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestAdminHasEveryRole(t *testing.T) {
	assert.True(t, MockIdentity.Has(RoleStaff))
	assert.False(t, Identity{Role: RoleUser}.Has(RoleStaff))
}
