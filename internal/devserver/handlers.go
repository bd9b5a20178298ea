package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alessandrolsdev/ledgersync/internal/model"
)

// ErrorResponse is the error body shape shared with the api client.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeError(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorType, Message: message})
}

type contextKey string

const usernameKey contextKey = "username"

// requireAuth validates the Authorization: Bearer header and stores the
// token's username in the request context. Unlike a browser app, the sync
// client sends the credential as a header, not a cookie.
func requireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
				return
			}

			username, err := tokens.Validate(tokenStr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func usernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok && name != ""
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin is the authentication exchange: identifier and secret in,
// bearer token out. Unknown users and wrong passwords are the same 401 —
// no account enumeration, even on a dev server.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	acct, ok := s.store.account(req.Username)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if err := s.passwords.Verify(acct.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, err := s.tokens.Generate(req.Username)
	if err != nil {
		s.logger.Error("issuing token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not issue token")
		return
	}

	s.logger.Info("login", slog.String("username", req.Username))
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// handleMe is the identity fetch: the profile record for the credential
// on the request.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no authenticated user")
		return
	}

	acct, ok := s.store.account(username)
	if !ok {
		// Token outlived the account; the client treats this as
		// session invalidation.
		writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return
	}

	writeJSON(w, http.StatusOK, acct.Identity)
}

type createTransactionResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// handleCreateTransaction is the write replay endpoint. It accepts one
// draft at a time and deduplicates on the Idempotency-Key header: a
// replayed key returns 200 with the original transaction ID instead of
// booking the amount twice.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no authenticated user")
		return
	}

	var draft model.TransactionDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if draft.Description == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "description is required")
		return
	}
	if draft.Amount <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "amount must be positive")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	id, created := s.store.createTransaction(username, key, draft)
	if !created {
		s.logger.Info("duplicate transaction ignored",
			slog.String("idempotencyKey", key),
			slog.String("transactionID", id),
		)
		writeJSON(w, http.StatusOK, createTransactionResponse{ID: id, Duplicate: true})
		return
	}

	s.logger.Info("transaction recorded",
		slog.String("transactionID", id),
		slog.String("username", username),
		slog.Float64("amount", draft.Amount),
	)
	writeJSON(w, http.StatusCreated, createTransactionResponse{ID: id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
