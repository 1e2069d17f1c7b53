package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-bridge/auth"
	"github.com/pkg/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

type loginRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LoginHandler exchanges an externally issued ID token for a bridge session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		if provider != s.config.GetProviderName() {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown provider"})
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		response, err := s.auth.Login(r.Context(), auth.LoginRequest{
			Token:     req.Token,
			Email:     req.Email,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			s.writeLoginError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, response)
	}
}

// RefreshHandler mints a new access token from a refresh token.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		response, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		switch {
		case errors.Is(err, auth.InvalidPayloadErr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "refresh_token is required"})
			return
		case errors.Is(err, auth.InvalidRefreshTokenErr):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid refresh token"})
			return
		case err != nil:
			s.logger.Error().Err(err).Msg("refresh failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}

		writeJSON(w, http.StatusOK, response)
	}
}

// LogoutHandler invalidates the session behind a refresh token.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
			if errors.Is(err, auth.InvalidPayloadErr) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "refresh_token is required"})
				return
			}
			s.logger.Error().Err(err).Msg("logout failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.InvalidPayloadErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token and email are required"})
	case errors.Is(err, auth.InvalidCredentialsErr):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	case errors.Is(err, auth.InactiveAccountErr):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "account is inactive"})
	default:
		s.logger.Error().Err(err).Msg("login failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP prefers the first forwarded address when the bridge sits behind a
// proxy, falling back to the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
