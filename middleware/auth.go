package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vivekbarnaon/Doc-Scanner/config"
	"github.com/vivekbarnaon/Doc-Scanner/pkg/logger"
)

// SessionCookie is the cookie carrying the signed session token
const SessionCookie = "docscanner_session"

// SessionClaims represents the JWT claims of a signed-in user
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateSessionToken creates a signed session token for a user
func GenerateSessionToken(email, name string, cfg *config.AuthConfig) (string, time.Time, error) {
	expiresAt := time.Now().Add(time.Duration(cfg.SessionExpireHours) * time.Hour)

	claims := SessionClaims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ParseSessionToken validates a session token and returns its claims
func ParseSessionToken(tokenString string, cfg *config.AuthConfig) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// CurrentUser resolves the session from the cookie (or a Bearer header)
// and stores the user in the request context. When the identity provider
// is not configured every visitor is treated as unauthenticated.
func CurrentUser(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.GoogleConfigured() {
			c.Next()
			return
		}

		tokenString, err := c.Cookie(SessionCookie)
		if err != nil || tokenString == "" {
			if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := ParseSessionToken(tokenString, cfg)
		if err != nil {
			// Expired or tampered sessions are simply ignored
			c.Next()
			return
		}

		c.Set("user_email", claims.Email)
		c.Set("user_name", claims.Name)

		ctx := context.WithValue(c.Request.Context(), logger.UserKey, claims.Email)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireAuth guards a route that needs a signed-in user. Browser
// requests are redirected to the login page with the originally requested
// path preserved for the post-login redirect; API requests get a 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		if isAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		from := c.Request.URL.RequestURI()
		c.Redirect(http.StatusFound, "/login?from="+url.QueryEscape(from))
		c.Abort()
	}
}

// RequireGuest guards the login route: an already-authenticated visitor
// is sent back to where they were headed, or home.
func RequireGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			c.Next()
			return
		}

		from := c.Query("from")
		if !SafeReturnPath(from) {
			from = "/"
		}
		c.Redirect(http.StatusFound, from)
		c.Abort()
	}
}

// SafeReturnPath reports whether p can be used as a post-login redirect
// target. Only site-local absolute paths qualify: protocol-relative
// values like //host/path (or the /\host backslash variant) would send
// the browser to another origin.
func SafeReturnPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, `/\`) {
		return false
	}
	return true
}

// IsAuthenticated reports whether the current request carries a valid session
func IsAuthenticated(c *gin.Context) bool {
	return GetUserEmail(c) != ""
}

// GetUserEmail gets the signed-in user's email from context
func GetUserEmail(c *gin.Context) string {
	if email, exists := c.Get("user_email"); exists {
		return email.(string)
	}
	return ""
}

// GetUserName gets the signed-in user's display name from context
func GetUserName(c *gin.Context) string {
	if name, exists := c.Get("user_name"); exists {
		return name.(string)
	}
	return ""
}

func isAPIRequest(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
