package web

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tellnoone/secrets/internal/repository"
	"github.com/tellnoone/secrets/internal/session"
)

// SecretsHandler serves the landing page, the public wall and the secret
// submission form.
type SecretsHandler struct {
	accounts repository.AccountRepository
	sessions *session.Manager
	rd       *renderer
	logger   *zap.Logger
}

// NewSecretsHandler creates a new SecretsHandler.
func NewSecretsHandler(accounts repository.AccountRepository, sessions *session.Manager, rd *renderer, logger *zap.Logger) *SecretsHandler {
	return &SecretsHandler{
		accounts: accounts,
		sessions: sessions,
		rd:       rd,
		logger:   logger.Named("secrets_handler"),
	}
}

// Home handles GET /.
func (h *SecretsHandler) Home(w http.ResponseWriter, r *http.Request) {
	_, loggedIn := h.sessions.AccountID(r.Context())
	h.rd.render(w, http.StatusOK, pageHome, pageData{Title: "Secrets", LoggedIn: loggedIn})
}

// List handles GET /secrets.
// Every submitted secret is shown; authors are never disclosed.
func (h *SecretsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accounts.ListSecrets(r.Context())
	if err != nil {
		h.logger.Error("failed to list secrets", zap.Error(err))
		h.rd.internalError(w)
		return
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}

	_, loggedIn := h.sessions.AccountID(r.Context())
	h.rd.render(w, http.StatusOK, pageSecrets, pageData{
		Title:    "Secrets",
		LoggedIn: loggedIn,
		Secrets:  texts,
	})
}

// SubmitForm handles GET /submit. Requires RequireAccount.
func (h *SecretsHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	h.rd.render(w, http.StatusOK, pageSubmit, pageData{Title: "Submit a secret", LoggedIn: true})
}

// Submit handles POST /submit. Requires RequireAccount.
// The secret replaces any previous secret of the account.
func (h *SecretsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	account := accountFromCtx(r.Context())
	if account == nil {
		// Should never happen if RequireAccount runs first.
		redirect(w, r, "/login")
		return
	}

	if !h.rd.parseForm(w, r) {
		return
	}

	secret := r.PostFormValue("secret")
	if strings.TrimSpace(secret) == "" {
		redirect(w, r, "/submit")
		return
	}

	if err := h.accounts.SetSecret(r.Context(), account.ID, secret); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted between the gate and the write.
			rejectSession(w, r, h.sessions, h.logger)
			return
		}
		h.logger.Error("failed to save secret",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		h.rd.internalError(w)
		return
	}

	redirect(w, r, "/secrets")
}
