package httpserver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"github.com/skip2/go-qrcode"

	"pastebox/internal/expiry"
	"pastebox/internal/paste"
	"pastebox/internal/storage"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	s.render(w, r, http.StatusOK, "index", s.indexData(user, "", "", "", ""))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)

	maxBody := int64(s.maxBytes) + 4096
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		msg := "Unable to parse form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("Content exceeds %d byte limit", s.maxBytes)
		}
		s.render(w, r, http.StatusBadRequest, "index", s.indexData(user, "", "", "", msg))
		return
	}

	content := r.FormValue("content")
	lang := strings.TrimSpace(r.FormValue("language"))
	expire := r.FormValue("expiration")
	password := r.FormValue("password")

	if lang == "" {
		lang = defaultLanguage
	}

	if content == "" {
		s.render(w, r, http.StatusBadRequest, "index", s.indexData(user, lang, expire, content, "Content cannot be empty"))
		return
	}
	if len(content) > s.maxBytes {
		s.render(w, r, http.StatusBadRequest, "index", s.indexData(user, lang, expire, "", fmt.Sprintf("Content exceeds %d byte limit", s.maxBytes)))
		return
	}

	id, err := s.pastes.Create(r.Context(), paste.CreateParams{
		Content:    content,
		Language:   lang,
		Password:   password,
		Expiration: expire,
		OwnerID:    userID(user),
	})
	if err != nil {
		s.serverError(w, r, user, err)
		return
	}

	http.Redirect(w, r, "/"+id, http.StatusSeeOther)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, nil)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "password", passwordPageData{ID: chi.URLParam(r, "id"), Error: "Unable to parse form"})
		return
	}
	password := r.PostFormValue("password")
	s.view(w, r, &password)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request, password *string) {
	user := s.currentUser(r)
	id := chi.URLParam(r, "id")

	v, err := s.pastes.View(r.Context(), id, userID(user), password)
	switch {
	case errors.Is(err, paste.ErrNotFound):
		s.notFound(w, r, user)
		return
	case errors.Is(err, paste.ErrPasswordRequired):
		s.render(w, r, http.StatusOK, "password", passwordPageData{page: page{user}, ID: id})
		return
	case errors.Is(err, paste.ErrPasswordIncorrect):
		s.render(w, r, http.StatusUnauthorized, "password", passwordPageData{page: page{user}, ID: id, Error: "Incorrect password"})
		return
	case err != nil:
		s.serverError(w, r, user, err)
		return
	}

	p := v.Paste
	data := viewPageData{
		page:          page{user},
		Paste:         p,
		LanguageLabel: languageLabel(p.Language),
		Created:       p.CreatedAt.UTC().Format("2006-01-02 15:04"),
		Canonical:     s.canonicalURL(r, p.ID),
		IsOwner:       v.IsOwner,
		CanDelete:     v.IsOwner || p.Anonymous(),
	}
	if p.HasExpiration() {
		data.ExpiresIn = expiry.Remaining(p.ExpiresAt, s.pastes.Now())
	}
	s.render(w, r, http.StatusOK, "view", data)
}

// fetchUngated loads a live paste for the raw and QR endpoints, writing the
// response itself when the paste is missing or password protected.
func (s *Server) fetchUngated(w http.ResponseWriter, r *http.Request) (*storage.Paste, bool) {
	p, err := s.pastes.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, paste.ErrNotFound) {
			http.Error(w, "Paste not found", http.StatusNotFound)
			return nil, false
		}
		hlog.FromRequest(r).Error().Err(err).Msg("fetch paste")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	if p.Protected() {
		http.Error(w, "This paste is password protected", http.StatusForbidden)
		return nil, false
	}
	return p, true
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	p, ok := s.fetchUngated(w, r)
	if !ok {
		return
	}

	etag := etagFor(p.Content)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Header().Set("ETag", etag)
	_, _ = io.WriteString(w, p.Content)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	p, ok := s.fetchUngated(w, r)
	if !ok {
		return
	}

	png, err := qrcode.Encode(s.canonicalURL(r, p.ID), qrcode.Medium, 256)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode qr code")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// handleDelete always lands on the home page; the outcome is only logged.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(r)
	id := chi.URLParam(r, "id")

	result, err := s.pastes.Delete(r.Context(), id, userID(user))
	logger := hlog.FromRequest(r)
	if err != nil {
		logger.Error().Err(err).Str("paste_id", id).Msg("delete paste")
	} else {
		logger.Info().Str("paste_id", id).Stringer("result", result).Msg("delete paste")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func etagFor(content string) string {
	sum := sha256.Sum256([]byte(content))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
