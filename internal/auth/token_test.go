package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss, err := NewIssuer("s3cret", "excise", time.Hour)
	require.NoError(t, err)

	roleID := int64(4)
	raw, err := iss.Issue(42, "permit.clerk", &roleID, false)
	require.NoError(t, err)

	claims, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "permit.clerk", claims.Username)
	require.NotNil(t, claims.RoleID)
	assert.Equal(t, roleID, *claims.RoleID)
	assert.False(t, claims.IsSuperuser)
	assert.Equal(t, "42", claims.Subject)
}

func TestIssuer_Rejects(t *testing.T) {
	iss, err := NewIssuer("s3cret", "excise", time.Minute)
	require.NoError(t, err)
	good, err := iss.Issue(1, "admin", nil, true)
	require.NoError(t, err)

	other, err := NewIssuer("different", "excise", time.Minute)
	require.NoError(t, err)
	forged, err := other.Issue(1, "admin", nil, true)
	require.NoError(t, err)

	foreign, err := NewIssuer("s3cret", "someone-else", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue(1, "admin", nil, true)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := iss.Issue(0, "ghost", nil, false)
	require.NoError(t, err)

	expired := *iss
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	tests := []struct {
		name   string
		issuer *Issuer
		raw    string
	}{
		{"garbage", iss, "not-a-token"},
		{"wrong secret", iss, forged},
		{"wrong issuer", iss, wrongIssuer},
		{"alg none", iss, unsigned},
		{"no user", iss, noUser},
		{"expired", &expired, good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.Parse(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewIssuer(t *testing.T) {
	_, err := NewIssuer("", "excise", 0)
	assert.ErrorIs(t, err, ErrMissingSecret)

	iss, err := NewIssuer("x", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, iss.ttl)
}
