package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vivekbarnaon/Doc-Scanner/config"
	"github.com/vivekbarnaon/Doc-Scanner/middleware"
	"github.com/vivekbarnaon/Doc-Scanner/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	stateCookie  = "docscanner_oauth_state"
	returnCookie = "docscanner_return_to"

	defaultUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// AuthHandler implements the Google sign-in flow: redirect to the
// provider, exchange the callback code, then issue a signed session
// cookie. When the provider is not configured the handlers degrade to a
// soft mode: sign-in reports the missing configuration and logout is a
// silent no-op.
type AuthHandler struct {
	config        *config.Config
	oauth         *oauth2.Config
	userinfoURL   string
	httpClient    *http.Client
	secureCookies bool
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	h := &AuthHandler{
		config:      cfg,
		userinfoURL: defaultUserinfoURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		// Cookies ride plain HTTP only on local deployments
		secureCookies: strings.HasPrefix(cfg.Auth.RedirectURL, "https://"),
	}
	if cfg.Auth.GoogleConfigured() {
		h.oauth = &oauth2.Config{
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}
	return h
}

// googleUser is the subset of the OpenID userinfo reply we keep
type googleUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login starts the OAuth flow. The optional from query parameter is
// remembered for the post-login redirect.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.oauth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sign-in is not configured on this deployment"})
		return
	}

	state := uuid.New().String()
	c.SetCookie(stateCookie, state, 600, "/", "", h.secureCookies, true)

	if from := c.Query("from"); middleware.SafeReturnPath(from) {
		c.SetCookie(returnCookie, from, 600, "/", "", h.secureCookies, true)
	}

	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// Callback completes the OAuth flow: verify state, exchange the code,
// fetch the user's profile and set the session cookie. Failures land back
// on the login page with an inline error.
func (h *AuthHandler) Callback(c *gin.Context) {
	if h.oauth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sign-in is not configured on this deployment"})
		return
	}

	expectedState, err := c.Cookie(stateCookie)
	if err != nil || expectedState == "" || c.Query("state") != expectedState {
		h.failLogin(c, "Sign-in session expired. Please try again.")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", h.secureCookies, true)

	code := c.Query("code")
	if code == "" {
		h.failLogin(c, "Sign-in was cancelled.")
		return
	}

	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, h.httpClient)
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Warn(c.Request.Context(), "oauth code exchange failed", "error", err)
		h.failLogin(c, "Sign-in failed. Please try again.")
		return
	}

	user, err := h.fetchUserinfo(ctx, token)
	if err != nil {
		logger.Warn(c.Request.Context(), "userinfo fetch failed", "error", err)
		h.failLogin(c, "Could not read your Google profile. Please try again.")
		return
	}

	session, expiresAt, err := middleware.GenerateSessionToken(user.Email, user.Name, &h.config.Auth)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to sign session token", "error", err)
		h.failLogin(c, "Sign-in failed. Please try again.")
		return
	}

	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetCookie(middleware.SessionCookie, session, maxAge, "/", "", h.secureCookies, true)

	logger.Info(c.Request.Context(), "user signed in", "user", user.Email)

	returnTo := "/"
	if v, err := c.Cookie(returnCookie); err == nil && middleware.SafeReturnPath(v) {
		returnTo = v
	}
	c.SetCookie(returnCookie, "", -1, "/", "", h.secureCookies, true)
	c.Redirect(http.StatusFound, returnTo)
}

// Logout clears the session. Without a configured provider there is no
// session to clear and the call is a silent no-op.
func (h *AuthHandler) Logout(c *gin.Context) {
	if user := middleware.GetUserEmail(c); user != "" {
		logger.Info(c.Request.Context(), "user signed out", "user", user)
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// Me returns the current-user state for the UI
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated":  middleware.IsAuthenticated(c),
		"email":          middleware.GetUserEmail(c),
		"name":           middleware.GetUserName(c),
		"authConfigured": h.config.Auth.GoogleConfigured(),
	})
}

func (h *AuthHandler) fetchUserinfo(ctx context.Context, token *oauth2.Token) (*googleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, fmt.Errorf("userinfo reply missing email")
	}
	return &user, nil
}

// failLogin sends the visitor back to the login page with an inline error
func (h *AuthHandler) failLogin(c *gin.Context, message string) {
	c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape(message))
}
