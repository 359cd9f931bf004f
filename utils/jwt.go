package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/ledger/config"
)

// Claims defines JWT claims issued by the identity service.
type Claims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Guilds      []string `json:"guilds,omitempty"`
	GuildAdmins []string `json:"guild_admins,omitempty"`
	jwt.RegisteredClaims
}

// InGuild reports whether the principal is a member of guildID.
func (c *Claims) InGuild(guildID string) bool {
	return containsString(c.Guilds, guildID) || c.AdminOf(guildID)
}

// AdminOf reports whether the principal administers guildID.
func (c *Claims) AdminOf(guildID string) bool {
	return containsString(c.GuildAdmins, guildID)
}

// GenerateToken issues a JWT for the given principal. The ledger only parses
// tokens; issuing is used by tooling and tests.
func GenerateToken(userID, username string, guilds, guildAdmins []string, duration time.Duration) (string, error) {
	cfg := config.Get()

	claims := Claims{
		UserID:      userID,
		Username:    username,
		Guilds:      guilds,
		GuildAdmins: guildAdmins,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a JWT and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user_id")
	}

	return claims, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
