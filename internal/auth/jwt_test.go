package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormTokens_IssueAndValidate(t *testing.T) {
	mgr := NewFormTokens("form-secret-32-chars-long!!!!!!!", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		tok, err := mgr.Issue("alice@example.org")
		require.NoError(t, err)

		claims, err := mgr.Validate(tok)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.org", claims.ChatUser)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("garbage fails", func(t *testing.T) {
		_, err := mgr.Validate("invalid-token")
		assert.ErrorIs(t, err, ErrInvalidFormToken)
	})

	t.Run("other secret fails", func(t *testing.T) {
		other := NewFormTokens("another-secret-32-chars-long!!!!", time.Hour)
		tok, err := other.Issue("bob@example.org")
		require.NoError(t, err)
		_, err = mgr.Validate(tok)
		assert.ErrorIs(t, err, ErrInvalidFormToken)
	})

	t.Run("expired fails", func(t *testing.T) {
		short := NewFormTokens("form-secret-32-chars-long!!!!!!!", -time.Second)
		tok, err := short.Issue("carol@example.org")
		require.NoError(t, err)
		_, err = short.Validate(tok)
		assert.ErrorIs(t, err, ErrInvalidFormToken)
	})

	t.Run("none algorithm rejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, FormClaims{ChatUser: "mallory"})
		s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = mgr.Validate(s)
		assert.ErrorIs(t, err, ErrInvalidFormToken)
	})
}
