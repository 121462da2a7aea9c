// Package middleware provides HTTP middleware for authentication, request
// context, logging, tracing, metrics and rate limiting.
package middleware

import (
	"strconv"
	"strings"

	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDLocal is the Fiber locals key holding the authenticated user id.
const UserIDLocal = "userID"

// AuthRequired validates the bearer token issued by the identity service and
// stores its subject as the user id. Issuer and audience are checked when
// configured.
func AuthRequired(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c.Get("Authorization"))
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		userID, err := ParseUserToken(cfg, tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals(UserIDLocal, userID)
		// Sync to UserContext for logging and downstream services
		c.SetUserContext(observability.WithUserID(c.UserContext(), userID))
		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ParseUserToken validates tokenString and returns the user id in its
// subject claim.
func ParseUserToken(cfg *config.Config, tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, models.NewUnauthorizedError("Invalid token claims")
	}

	if cfg.JWTIssuer != "" {
		if issuer, _ := claims["iss"].(string); issuer != cfg.JWTIssuer {
			return 0, models.NewUnauthorizedError("Invalid token issuer")
		}
	}
	if cfg.JWTAudience != "" && !hasAudience(claims, cfg.JWTAudience) {
		return 0, models.NewUnauthorizedError("Invalid token audience")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, models.NewUnauthorizedError("Invalid subject claim")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return 0, models.NewUnauthorizedError("Invalid user ID in token")
	}
	return uint(userID), nil
}

func hasAudience(claims jwt.MapClaims, want string) bool {
	aud, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// UserID returns the authenticated user id stored by AuthRequired.
func UserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(UserIDLocal).(uint)
	return id, ok
}
