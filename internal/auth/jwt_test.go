package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateAccessToken(Identity{ParticipantID: "alice", DisplayName: "Alice"})
	assert.Equal(t, nil, err)

	id, err := m.ValidateAccessToken(token)
	assert.Equal(t, nil, err)
	assert.Equal(t, "alice", id.ParticipantID)
	assert.Equal(t, "Alice", id.DisplayName)
	assert.Equal(t, ColorFor("alice"), id.Color)
	assert.Equal(t, false, id.Anonymous)
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	other := NewJWTManager("other", time.Hour)
	expired := NewJWTManager("secret", -time.Minute)

	token, _ := other.GenerateAccessToken(Identity{ParticipantID: "bob"})
	_, err := m.ValidateAccessToken(token)
	assert.Equal(t, ErrInvalidToken, err)

	token, _ = expired.GenerateAccessToken(Identity{ParticipantID: "bob"})
	_, err = m.ValidateAccessToken(token)
	assert.Equal(t, ErrExpiredToken, err)

	_, err = m.ValidateAccessToken("garbage")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestGenerateRejectsBadParticipantID(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	_, err := m.GenerateAccessToken(Identity{ParticipantID: "has/slash"})
	assert.NotEqual(t, nil, err)
}

func TestAnonymous(t *testing.T) {
	a := Anonymous("")
	b := Anonymous("Pat")

	assert.Equal(t, true, a.Anonymous)
	assert.Equal(t, true, strings.HasPrefix(a.ParticipantID, "anon-"))
	assert.NotEqual(t, a.ParticipantID, b.ParticipantID)
	assert.Equal(t, "Pat", b.DisplayName)
	assert.Equal(t, true, strings.HasPrefix(a.DisplayName, "Guest "))
}

func TestColorForIsStable(t *testing.T) {
	assert.Equal(t, ColorFor("carol"), ColorFor("carol"))
}
