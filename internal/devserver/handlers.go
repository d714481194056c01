package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type authResponse struct {
	AccessToken string       `json:"access_token,omitempty"`
	User        *domain.User `json:"user,omitempty"`
	Pending     bool         `json:"pending_confirmation,omitempty"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	acc, ok := s.findByEmail(req.Email)
	if !ok {
		return domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(req.Password)) != nil {
		return domain.ErrInvalidCredentials
	}
	if !acc.confirmed {
		return echo.NewHTTPError(http.StatusForbidden, "account not confirmed")
	}

	token, err := s.issueToken(&acc.user)
	if err != nil {
		return err
	}
	s.writeSessionCookie(c, token)

	user := acc.user
	return c.JSON(http.StatusOK, authResponse{AccessToken: token, User: &user})
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Username == "" || len(req.Password) < 8 {
		return domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:       uuid.NewString(),
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
		Roles:    []string{"user"},
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		return domain.ErrUserExists
	}
	s.accounts[req.Email] = &account{
		user:         user,
		passwordHash: string(hash),
		confirmed:    !s.RequireConfirmation,
	}
	s.mu.Unlock()

	if s.RequireConfirmation {
		return c.JSON(http.StatusAccepted, authResponse{Pending: true})
	}

	token, err := s.issueToken(&user)
	if err != nil {
		return err
	}
	s.writeSessionCookie(c, token)
	return c.JSON(http.StatusCreated, authResponse{AccessToken: token, User: &user})
}

func (s *Server) me(c echo.Context) error {
	acc, ok := s.findByID(c.Get("user_id").(string))
	if !ok {
		return domain.ErrUnauthorized
	}
	user := acc.user
	return c.JSON(http.StatusOK, &user)
}

func (s *Server) signOut(c echo.Context) error {
	// Revocation is per-process in the dev backend; clearing the cookie is
	// the observable effect.
	s.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(req.NewPassword) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "new password too short")
	}

	acc, ok := s.findByID(c.Get("user_id").(string))
	if !ok {
		return domain.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(req.OldPassword)) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "old password does not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	acc.passwordHash = string(hash)
	s.mu.Unlock()
	return c.NoContent(http.StatusNoContent)
}

// collections is a sample protected resource standing in for the real
// domain endpoints.
func (s *Server) collections(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"collections": []map[string]any{
			{"id": "starter", "name": "Starter Collection", "cards": 60},
		},
	})
}

func (s *Server) issueToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"gen":   s.currentGeneration(),
		"exp":   time.Now().Add(s.tokenTTL).Unix(),
		"iat":   time.Now().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Server) cookieName() string {
	return fmt.Sprintf("sb-%s-auth-token", s.projectRef)
}

// writeSessionCookie mirrors the provider's behavior of exposing the token
// in a JSON-encoded cookie alongside the response body.
func (s *Server) writeSessionCookie(c echo.Context, token string) {
	payload, _ := json.Marshal(map[string]string{"access_token": token})
	c.SetCookie(&http.Cookie{
		Name:  s.cookieName(),
		Value: url.QueryEscape(string(payload)),
		Path:  "/",
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:    s.cookieName(),
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}
