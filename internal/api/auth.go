package api

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/module-manager/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
}

// handleLogin authenticates against the directory, opens a session and sets
// the session cookie. The token is also returned for Bearer clients.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		writeBadRequest(w, "invalid login request")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid username or password")
		return
	case errors.Is(err, auth.ErrAccessDenied):
		writeForbidden(w, "access denied")
		return
	case errors.Is(err, auth.ErrDirectoryUnavailable):
		writeUnavailable(w, "user directory is currently unreachable, please try again later")
		return
	case err != nil:
		writeInternalError(w, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.sessCfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.sessCfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
		Username:    session.Username,
	})
}

// decodeLogin accepts either a JSON body or the login form fields.
func decodeLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to JSON
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := parseForm(r, mediaType); err != nil {
			return req, err
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// handleLogout deletes the session and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	if err := s.auth.Logout(r.Context(), session); err != nil {
		s.logger.Error("Logout Error",
			"description", "could not delete session",
			"username", session.Username, "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.sessCfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.sessCfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the current session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeUnauthorized(w, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, session)
}
