package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const callerKey = "caller"

var ErrInvalidToken = errors.New("invalid token")

// Identify resolves who is calling. A bearer token identifies a logged in user and the cart
// session header identifies an anonymous cart; either, both or neither may be present.
func Identify(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := service.Caller{
				SessionID: strings.TrimSpace(c.Request().Header.Get(client.SessionHeader)),
			}

			if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
				raw, ok := strings.CutPrefix(auth, "Bearer ")
				if !ok {
					return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
				}
				userID, err := ParseToken(secret, raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
				}
				caller.UserID = userID
			}

			c.Set(callerKey, caller)
			return next(c)
		}
	}
}

// CallerFrom returns the caller Identify stored on the request.
func CallerFrom(c echo.Context) service.Caller {
	caller, _ := c.Get(callerKey).(service.Caller)
	return caller
}

// IssueToken signs an HS256 token whose subject is userID.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
