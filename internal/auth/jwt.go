package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "collab-sync"

// Identity is who a connection writes presence as.
type Identity struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Color         string `json:"color"`
	Anonymous     bool   `json:"-"`
}

// Claims JWT 클레임
type Claims struct {
	DisplayName string `json:"display_name"`
	Color       string `json:"color,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager JWT 토큰 관리자
type JWTManager struct {
	secretKey    []byte
	accessExpiry time.Duration
}

// NewJWTManager JWTManager 생성
func NewJWTManager(secretKey string, accessExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:    []byte(secretKey),
		accessExpiry: accessExpiry,
	}
}

// GenerateAccessToken 액세스 토큰 생성
//
// The subject is the participant id.
func (m *JWTManager) GenerateAccessToken(id Identity) (string, error) {
	if !store.ValidID(id.ParticipantID) {
		return "", fmt.Errorf("%w: participant id %q", ErrInvalidToken, id.ParticipantID)
	}
	now := time.Now()
	claims := &Claims{
		DisplayName: id.DisplayName,
		Color:       id.Color,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   id.ParticipantID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateAccessToken 액세스 토큰 검증
func (m *JWTManager) ValidateAccessToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !store.ValidID(claims.Subject) {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{
		ParticipantID: claims.Subject,
		DisplayName:   claims.DisplayName,
		Color:         claims.Color,
	}
	if id.DisplayName == "" {
		id.DisplayName = id.ParticipantID
	}
	if id.Color == "" {
		id.Color = ColorFor(id.ParticipantID)
	}
	return id, nil
}

var palette = []string{
	"#e03131", "#2f9e44", "#1971c2", "#f08c00",
	"#9c36b5", "#0c8599", "#e8590c", "#5c940d",
}

// ColorFor picks a stable palette color for a participant id.
func ColorFor(participantID string) string {
	var h uint32
	for i := 0; i < len(participantID); i++ {
		h = h*31 + uint32(participantID[i])
	}
	return palette[h%uint32(len(palette))]
}

// Anonymous returns a fresh identity for a client without a token.
func Anonymous(displayName string) Identity {
	id := "anon-" + uuid.New().String()
	if displayName == "" || len(displayName) > 64 {
		displayName = "Guest " + id[5:9]
	}
	return Identity{
		ParticipantID: id,
		DisplayName:   displayName,
		Color:         ColorFor(id),
		Anonymous:     true,
	}
}
