package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueThenVerifyRoundTrips(t *testing.T) {
	v := NewIdentityVerifier(IdentityConfig{JWTSecret: "s3cr3t", TokenExpiry: time.Hour})

	token, err := v.Issue("agent-42")
	require.NoError(t, err)
	agentID, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "agent-42", agentID)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	v := NewIdentityVerifier(IdentityConfig{JWTSecret: "s3cr3t"})
	token, err := v.Issue("agent-1")
	require.NoError(t, err)

	other := NewIdentityVerifier(IdentityConfig{JWTSecret: "different-secret"})
	_, err = other.Verify(token)
	require.Error(t, err)
}

func TestDisabledWithoutSecret(t *testing.T) {
	v := NewIdentityVerifier(IdentityConfig{})
	_, err := v.Issue("agent-1")
	require.ErrorIs(t, err, ErrIdentityDisabled)
	_, err = v.Verify("whatever")
	require.ErrorIs(t, err, ErrIdentityDisabled)
}
