package apptoken

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("app-secret")

func TestMintAndVerify(t *testing.T) {
	m := NewMinter(secret, 0, []string{"boss@example.com"})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return t0 })

	token, claims, err := m.Mint(Subject{
		ID:            "1234",
		Email:         "Boss@Example.com",
		EmailVerified: true,
		Name:          "Boss",
		Provider:      "google",
		Platform:      "web",
	})
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.NotEmpty(t, claims.ID)

	got, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "1234", got.Subject)
	assert.Equal(t, "Boss", got.Name)
	assert.Equal(t, "web", got.Platform)
	assert.Equal(t, "google", got.Provider)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, Namespace("google", "1234", "boss@example.com"), got.Namespace)
	assert.True(t, got.ExpiresAt.Time.Equal(t0.Add(DefaultTTL)), "exp = iat + 24h")
	assert.True(t, got.IssuedAt.Time.Equal(t0))
}

func TestClaimNamesOnTheWire(t *testing.T) {
	m := NewMinter(secret, time.Hour, nil)
	token, _, err := m.Mint(Subject{ID: "u1", Email: "a@b.c", Provider: "apple", Platform: "ios"})
	require.NoError(t, err)

	raw := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, raw)
	require.NoError(t, err)
	for _, k := range []string{"sub", "name", "platform", "isAdmin", "va-dir", "iat", "exp"} {
		assert.Contains(t, raw, k)
	}
	assert.Equal(t, false, raw["isAdmin"])
}

func TestAdminRequiresVerifiedEmail(t *testing.T) {
	m := NewMinter(secret, time.Hour, []string{"boss@example.com"})
	assert.False(t, m.IsAdmin("boss@example.com", false))
	assert.False(t, m.IsAdmin("", true))
	assert.False(t, m.IsAdmin("other@example.com", true))
	assert.True(t, m.IsAdmin("BOSS@example.com", true))
}

func TestVerifyRejects(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	m := NewMinter(secret, time.Hour, nil)
	m.SetClock(func() time.Time { return now })

	token, _, err := m.Mint(Subject{ID: "u1", Provider: "google", Platform: "web"})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		now = t0.Add(2 * time.Hour)
		defer func() { now = t0 }()
		_, err := m.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewMinter([]byte("other"), time.Hour, nil)
		other.SetClock(func() time.Time { return t0 })
		_, err := other.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Verify(unsigned)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMintWithoutSecret(t *testing.T) {
	_, _, err := NewMinter(nil, time.Hour, nil).Mint(Subject{ID: "x"})
	require.Error(t, err)
}

func TestNamespace(t *testing.T) {
	ns := Namespace("google", "42", "X@Y.com")
	assert.True(t, strings.HasPrefix(ns, "google_42_"))
	assert.Len(t, strings.TrimPrefix(ns, "google_42_"), 10)
	assert.Equal(t, ns, Namespace("google", "42", "x@y.com"))
	assert.NotEqual(t, ns, Namespace("apple", "42", "x@y.com"))
	assert.Equal(t, "", Namespace("google", "", "x@y.com"))
}
