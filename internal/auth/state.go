package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// StateClaims bind an OAuth state value to the user and provider that
// started the handshake.
type StateClaims struct {
	jwt.RegisteredClaims
	UserID   string          `json:"uid"`
	Provider models.Provider `json:"prv"`
}

// StateCodec mints and verifies OAuth state tokens.
type StateCodec struct {
	secret   []byte
	validity time.Duration
}

func NewStateCodec(secret []byte, validity time.Duration) *StateCodec {
	return &StateCodec{secret: secret, validity: validity}
}

// Issue returns a signed, single-use state token.
func (c *StateCodec) Issue(userID string, provider models.Provider) (string, error) {
	nonce, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.validity)),
		},
		UserID:   userID,
		Provider: provider,
	})
	return token.SignedString(c.secret)
}

// Verify checks the signature and expiry of state and returns its claims.
func (c *StateCodec) Verify(state string) (*StateClaims, error) {
	claims := &StateClaims{}
	if err := parse(state, claims, c.secret); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStateMismatch, err)
	}
	return claims, nil
}
