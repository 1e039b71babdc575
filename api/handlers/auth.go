package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clevio/dashboard/internal/auth"
	"github.com/clevio/dashboard/internal/model"
)

// CookieName is the login cookie carrying the signed dashboard token.
const CookieName = "dashboard_token"

// AuthHandler handles dashboard login and guards protected routes.
type AuthHandler struct {
	username string
	password string
	tokens   *auth.Manager
}

// NewAuthHandler creates an AuthHandler checking against the configured
// credentials.
func NewAuthHandler(username, password string, tokens *auth.Manager) *AuthHandler {
	return &AuthHandler{
		username: username,
		password: password,
		tokens:   tokens,
	}
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /login - checks credentials and sets the login cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if h.username == "" || req.Username != h.username || req.Password != h.password {
		sendError(c, http.StatusUnauthorized, model.ErrInvalidCredentials.Error())
		return
	}

	token, err := h.tokens.Issue()
	if err != nil {
		sendError(c, http.StatusInternalServerError, "failed to issue token")
		return
	}

	c.SetCookie(CookieName, token, int(h.tokens.TTL().Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Logout handles POST /logout - clears the login cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LoggedIn reports whether the request carries a valid login cookie.
func (h *AuthHandler) LoggedIn(c *gin.Context) bool {
	token, err := c.Cookie(CookieName)
	if err != nil || token == "" {
		return false
	}
	return h.tokens.Verify(token) == nil
}

// RequireLogin guards protected routes. API calls get a JSON 401; page
// requests are redirected to the login screen.
func (h *AuthHandler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.LoggedIn(c) {
			c.Next()
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			sendError(c, http.StatusUnauthorized, "login required")
		} else {
			c.Redirect(http.StatusFound, "/login.html")
		}
		c.Abort()
	}
}
