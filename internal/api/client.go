// Package api implements the HTTP client for the remote finance service.
//
// The client is a thin transport: it issues one request per call, maps the
// response onto the apperror taxonomy, and never retries. Retry policy
// belongs to the layers above — the session store treats any identity
// failure as invalidation, and the sync coordinator re-runs a halted drain
// on the next connectivity or readiness event.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alessandrolsdev/ledgersync/internal/apperror"
	"github.com/alessandrolsdev/ledgersync/internal/model"
)

// Client talks to the remote finance service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the service at baseURL.
// A trailing slash on baseURL is tolerated.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// errorResponse is the error body the service returns on non-2xx statuses.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login performs the authentication exchange: identifier and secret in,
// bearer credential out. A 401 maps to apperror.ErrInvalidCredentials;
// any other failure is returned as-is so the caller can distinguish
// "wrong password" from "network down".
func (c *Client) Login(ctx context.Context, username, secret string) (string, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: secret})
	if err != nil {
		return "", fmt.Errorf("api: encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("api: building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("api: calling login endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", apperror.InvalidCredentials(username)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api: login returned status %d: %s", resp.StatusCode, readErrorMessage(resp))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("api: decoding login response: %w", err)
	}
	if lr.Token == "" {
		return "", fmt.Errorf("api: login response contained no token")
	}

	return lr.Token, nil
}

// FetchIdentity retrieves the profile record for the given credential.
//
// Any non-success response — not just 401 — maps to ErrSessionInvalid.
// That is deliberate: the session store treats every failure to resolve
// identity as "session invalid" rather than as a transient error.
func (c *Client) FetchIdentity(ctx context.Context, token string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/me", nil)
	if err != nil {
		return nil, fmt.Errorf("api: building identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: calling identity endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.SessionInvalid(
			fmt.Sprintf("identity fetch returned status %d", resp.StatusCode))
	}

	var ident model.Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("api: decoding identity response: %w", err)
	}
	if ident.Username == "" {
		return nil, fmt.Errorf("api: service returned an identity with no username")
	}

	return &ident, nil
}

// CreateTransaction replays one pending write against the service.
//
// The write's client-generated ID travels as the Idempotency-Key header,
// so a retry after an ambiguous timeout cannot double-book the amount.
// Any non-2xx status maps to apperror.ErrRejected, which the coordinator
// treats as a stop signal for the current drain pass.
func (c *Client) CreateTransaction(ctx context.Context, token string, w model.PendingWrite) error {
	body, err := json.Marshal(w.Draft)
	if err != nil {
		return fmt.Errorf("api: encoding transaction %s: %w", w.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transactions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("api: building transaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", w.ID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: replaying transaction %s: %w", w.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		c.logger.Warn("transaction replay rejected",
			slog.String("writeID", w.ID),
			slog.Int("status", resp.StatusCode),
			slog.String("message", readErrorMessage(resp)),
		)
		return apperror.Rejected(w.ID, resp.StatusCode)
	}

	return nil
}

// ProbeHealth checks whether the service is reachable. Used by the
// connectivity prober; the result carries no body.
func (c *Client) ProbeHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("api: building health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: probing health endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api: health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// readErrorMessage pulls the message out of a JSON error body, falling
// back to an empty string. Best effort only — callers already have the
// status code.
func readErrorMessage(resp *http.Response) string {
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return ""
	}
	return er.Message
}
