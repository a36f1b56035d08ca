package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"portfolio/internal/session"
)

func (s *Server) cookieName(role session.Role) string {
	if role == session.RoleAdmin {
		return s.cfg.Auth.AdminCookie
	}
	return s.cfg.Auth.FrontCookie
}

func (s *Server) passwordHash(role session.Role) string {
	if role == session.RoleAdmin {
		return s.cfg.Auth.AdminPasswordHash
	}
	return s.cfg.Auth.FrontPasswordHash
}

func (s *Server) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", s.cfg.Auth.SecureCookies, true)
}

func (s *Server) handleLogin(role session.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "server.handleLogin"

		hash := s.passwordHash(role)
		password := c.PostForm("password")
		if hash == "" || password == "" ||
			bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			s.log.Info("login rejected", zap.String("role", string(role)), zap.String("ip", c.ClientIP()))
			errorJSON(c, http.StatusUnauthorized, "Invalid password.")
			return
		}

		token, err := s.sessions.Create(c.Request.Context(), role)
		if err != nil {
			s.fail(c, op, err)
			return
		}
		s.setCookie(c, s.cookieName(role), token, int(s.cfg.Auth.SessionTTL.Seconds()))
		c.JSON(http.StatusOK, gin.H{"status": "success", "role": role})
	}
}

func (s *Server) handleLogout(c *gin.Context) {
	const op = "server.handleLogout"

	for _, role := range []session.Role{session.RoleAdmin, session.RoleFront} {
		name := s.cookieName(role)
		token, err := c.Cookie(name)
		if err != nil || token == "" {
			continue
		}
		if err := s.sessions.Delete(c.Request.Context(), token); err != nil {
			s.fail(c, op, err)
			return
		}
		s.setCookie(c, name, "", -1)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// requireRole lets the request through when any of the roles has a live
// session cookie.
func (s *Server) requireRole(roles ...session.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "server.requireRole"

		for _, want := range roles {
			token, err := c.Cookie(s.cookieName(want))
			if err != nil || token == "" {
				continue
			}
			got, err := s.sessions.Lookup(c.Request.Context(), token)
			if errors.Is(err, session.ErrNoSession) {
				continue
			}
			if err != nil {
				s.fail(c, op, err)
				return
			}
			if got == want {
				c.Set("role", got)
				c.Next()
				return
			}
		}
		errorJSON(c, http.StatusUnauthorized, "Authentication required.")
	}
}
