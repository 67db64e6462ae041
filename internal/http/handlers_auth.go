package http

import (
	"net/http"

	"expensee/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      auth.Account `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
}

func newSessionResponse(sess auth.Session, acct auth.Account) sessionResponse {
	return sessionResponse{User: acct, Token: sess.Token, ExpiresAt: sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		ErrorResponse(http.StatusBadRequest, "username and password required").Write(w)
		return
	}
	sess, acct, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess, acct))
}

// handleRegister creates an account and signs it in. The role is always
// user; admins are created from the command line.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Role = auth.RoleUser
	if _, err := s.auth.Register(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, acct, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess, acct))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.auth.Logout(r.Context(), token); err != nil {
			writeError(w, r, err)
			return
		}
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	writeJSON(w, http.StatusOK, map[string]auth.Account{"user": acct})
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var req auth.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.auth.UpdateProfile(r.Context(), acct.ID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]auth.Account{"user": updated})
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.auth.ChangePassword(r.Context(), acct.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// adminOnly rejects accounts without the admin role.
func adminOnly(next accountHandler) accountHandler {
	return func(w http.ResponseWriter, r *http.Request, acct auth.Account) {
		if !acct.IsAdmin() {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		next(w, r, acct)
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	accts, err := s.auth.ListAccounts(r.Context(), acct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]auth.Account{"accounts": accts})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.auth.CreateAccount(r.Context(), acct, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
