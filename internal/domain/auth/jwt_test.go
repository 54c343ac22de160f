package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "promo")
	require.NoError(t, err)

	token, err := v.Issue(Identity{Subject: "ada@example.com", Privileged: true}, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{Subject: "ada@example.com", Privileged: true}, got)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	ctx := context.Background()
	v, err := NewJWTVerifier("s3cret", "")
	require.NoError(t, err)

	other, err := NewJWTVerifier("different", "")
	require.NoError(t, err)
	foreign, err := other.Issue(Identity{Subject: "eve@example.com"}, time.Hour)
	require.NoError(t, err)

	expired, err := v.Issue(Identity{Subject: "bob@example.com"}, -time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Email: "mallory@example.com", Admin: true}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Admin: true}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: ErrMissingCredential},
		{name: "garbage", token: "not.a.jwt", wantErr: ErrInvalidCredential},
		{name: "wrong secret", token: foreign, wantErr: ErrInvalidCredential},
		{name: "expired", token: expired, wantErr: ErrInvalidCredential},
		{name: "alg none", token: none, wantErr: ErrInvalidCredential},
		{name: "no subject", token: noSubject, wantErr: ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJWTVerifier_IssuerMismatch(t *testing.T) {
	issuer, err := NewJWTVerifier("s3cret", "someone-else")
	require.NoError(t, err)
	token, err := issuer.Issue(Identity{Subject: "ada@example.com"}, time.Hour)
	require.NoError(t, err)

	v, err := NewJWTVerifier("s3cret", "promo")
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWTVerifier_SubjectFallback(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", got.Subject)
	assert.False(t, got.Privileged)
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("", "")
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "abc", BearerToken("abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
	assert.Equal(t, "", BearerToken(""))
}

func TestIdentity_CanAccess(t *testing.T) {
	assert.True(t, Identity{Subject: "a"}.CanAccess("a"))
	assert.False(t, Identity{Subject: "a"}.CanAccess("b"))
	assert.True(t, Identity{Subject: "root", Privileged: true}.CanAccess("b"))
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{Subject: "a"})
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", got.Subject)
}
