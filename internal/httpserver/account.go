package httpserver

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"pastebox/internal/auth"
)

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register", accountPageData{page: page{s.currentUser(r)}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "register", accountPageData{Error: "Unable to parse form"})
		return
	}
	username := r.PostFormValue("username")

	id, err := s.auth.Register(r.Context(), username, r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	if err != nil {
		var invalid *auth.ValidationError
		if errors.As(err, &invalid) {
			s.render(w, r, http.StatusBadRequest, "register", accountPageData{Username: username, Error: invalid.Message})
			return
		}
		s.logError(r, err, "register")
		s.render(w, r, http.StatusInternalServerError, "register", accountPageData{Username: username, Error: "Failed to create account"})
		return
	}

	if !s.startSession(w, r, id) {
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login", accountPageData{page: page{s.currentUser(r)}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login", accountPageData{Error: "Unable to parse form"})
		return
	}
	username := r.PostFormValue("username")

	user, err := s.auth.Login(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.serverError(w, r, nil, err)
			return
		}
		s.render(w, r, http.StatusUnauthorized, "login", accountPageData{Username: username, Error: auth.InvalidCredentialsMessage})
		return
	}

	if !s.startSession(w, r, user.ID) {
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	pastes, err := s.pastes.ListByOwner(r.Context(), user.ID, s.listLimit)
	if err != nil {
		s.serverError(w, r, user, err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", listPageData{page: page{user}, Pastes: pastes})
}

func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	pastes, err := s.pastes.ListPublic(r.Context(), s.listLimit)
	if err != nil {
		s.serverError(w, r, user, err)
		return
	}
	s.render(w, r, http.StatusOK, "public", listPageData{page: page{user}, Pastes: pastes})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID int64) bool {
	token, err := s.auth.IssueSession(userID)
	if err != nil {
		s.serverError(w, r, nil, err)
		return false
	}
	s.setSessionCookie(w, r, token)
	return true
}

func (s *Server) logError(r *http.Request, err error, action string) {
	hlog.FromRequest(r).Error().Err(err).Str("action", action).Msg("request failed")
}
