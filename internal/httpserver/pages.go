package httpserver

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pastebox/internal/expiry"
	"pastebox/internal/storage"
)

const (
	siteName        = "pastebox"
	defaultLanguage = "plaintext"
)

var languages = []option{
	{Value: "plaintext", Label: "Plain Text"},
	{Value: "rust", Label: "Rust"},
	{Value: "javascript", Label: "JavaScript"},
	{Value: "typescript", Label: "TypeScript"},
	{Value: "python", Label: "Python"},
	{Value: "go", Label: "Go"},
	{Value: "java", Label: "Java"},
	{Value: "c", Label: "C"},
	{Value: "cpp", Label: "C++"},
	{Value: "csharp", Label: "C#"},
	{Value: "php", Label: "PHP"},
	{Value: "ruby", Label: "Ruby"},
	{Value: "swift", Label: "Swift"},
	{Value: "kotlin", Label: "Kotlin"},
	{Value: "sql", Label: "SQL"},
	{Value: "html", Label: "HTML"},
	{Value: "css", Label: "CSS"},
	{Value: "json", Label: "JSON"},
	{Value: "yaml", Label: "YAML"},
	{Value: "markdown", Label: "Markdown"},
	{Value: "bash", Label: "Bash"},
	{Value: "dockerfile", Label: "Dockerfile"},
}

var languageLabels = func() map[string]string {
	m := make(map[string]string, len(languages))
	for _, l := range languages {
		m[l.Value] = l.Label
	}
	return m
}()

var titleCaser = cases.Title(language.Und)

// languageLabel returns the display name for a language value. Values outside
// the list are shown title-cased.
func languageLabel(v string) string {
	if label, ok := languageLabels[v]; ok {
		return label
	}
	if v == "" {
		return languageLabels[defaultLanguage]
	}
	return titleCaser.String(v)
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

// page carries what the layout needs from every view.
type page struct {
	User *storage.User
}

func (p page) CurrentUser() *storage.User { return p.User }

type indexPageData struct {
	page
	LanguageOptions []option
	ExpireOptions   []option
	Content         string
	Error           string
	MaxBytes        int
}

type viewPageData struct {
	page
	Paste         *storage.Paste
	LanguageLabel string
	Created       string
	ExpiresIn     string
	Canonical     string
	IsOwner       bool
	CanDelete     bool
}

type passwordPageData struct {
	page
	ID    string
	Error string
}

type errorPageData struct {
	page
	Message string
}

type accountPageData struct {
	page
	Username string
	Error    string
}

type listPageData struct {
	page
	Pastes []*storage.Paste
}

type titled interface {
	PageTitle() string
}

type viewer interface {
	CurrentUser() *storage.User
}

func (d indexPageData) PageTitle() string { return "New Paste · " + siteName }

func (d viewPageData) PageTitle() string {
	if d.Paste != nil && d.Paste.ID != "" {
		return fmt.Sprintf("%s · %s", d.Paste.ID, siteName)
	}
	return "View Paste · " + siteName
}

func (d passwordPageData) PageTitle() string { return "Protected Paste · " + siteName }

func (d errorPageData) PageTitle() string {
	if d.Message == "" {
		return siteName
	}
	return d.Message + " · " + siteName
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	title := siteName
	if t, ok := data.(titled); ok {
		if pt := t.PageTitle(); pt != "" {
			title = pt
		}
	}
	var user *storage.User
	if v, ok := data.(viewer); ok {
		user = v.CurrentUser()
	}

	body := &bytes.Buffer{}
	bodyTemplate := name + "-body"
	if err := s.templates.ExecuteTemplate(body, bodyTemplate, data); err != nil {
		s.handleTemplateError(w, r, bodyTemplate, err)
		return
	}
	layoutBuf := &bytes.Buffer{}
	layoutData := struct {
		Title string
		Body  template.HTML
		User  *storage.User
	}{
		Title: title,
		Body:  template.HTML(body.String()),
		User:  user,
	}
	if err := s.templates.ExecuteTemplate(layoutBuf, "layout", layoutData); err != nil {
		s.handleTemplateError(w, r, "layout", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = layoutBuf.WriteTo(w)
}

func (s *Server) handleTemplateError(w http.ResponseWriter, r *http.Request, name string, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("render template")
	http.Error(w, "Template error", http.StatusInternalServerError)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, user *storage.User, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("internal error")
	s.render(w, r, http.StatusInternalServerError, "error", errorPageData{page: page{user}, Message: "Internal server error"})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, user *storage.User) {
	s.render(w, r, http.StatusNotFound, "error", errorPageData{page: page{user}, Message: "Paste not found"})
}

func (s *Server) indexData(user *storage.User, selectedLanguage, selectedExpire, content, errMsg string) indexPageData {
	if selectedLanguage == "" {
		selectedLanguage = defaultLanguage
	}
	if selectedExpire == "" {
		selectedExpire = expiry.DefaultOption
	}
	langOpts := make([]option, 0, len(languages))
	for _, l := range languages {
		langOpts = append(langOpts, option{Value: l.Value, Label: l.Label, Selected: l.Value == selectedLanguage})
	}
	expireChoices := expiry.Options()
	expOpts := make([]option, 0, len(expireChoices))
	for _, c := range expireChoices {
		expOpts = append(expOpts, option{Value: c.Value, Label: c.Label, Selected: c.Value == selectedExpire})
	}
	return indexPageData{
		page:            page{user},
		LanguageOptions: langOpts,
		ExpireOptions:   expOpts,
		Content:         content,
		Error:           errMsg,
		MaxBytes:        s.maxBytes,
	}
}

func formatSize(size int) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	const unit = 1024.0
	kb := float64(size)
	for _, suffix := range []string{"KB", "MB", "GB"} {
		kb /= unit
		if kb < unit {
			return fmt.Sprintf("%.1f %s", kb, suffix)
		}
	}
	return fmt.Sprintf("%d B", size)
}
