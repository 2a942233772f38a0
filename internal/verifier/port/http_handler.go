// Package port exposes the verification flows as a JSON API on net/http.
// A flow ticket is issued only after a successful password check, and every
// other route requires it.
package port

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/errmap"
	"github.com/sequentech/message-otp/internal/observability"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

// verifier is the subset of *app.Service the handler drives.
type verifier interface {
	BeginOrResume(ctx context.Context, flow app.Flow, subject app.Subject) (app.Step, error)
	SubmitContact(ctx context.Context, flow app.Flow, subject app.Subject, raw string) (app.Step, error)
	RequestChangeValue(ctx context.Context, flow app.Flow, subject app.Subject) (app.Step, error)
	RequestResend(ctx context.Context, flow app.Flow, subject app.Subject) (app.Step, error)
	SubmitCode(ctx context.Context, flow app.Flow, subject app.Subject, submitted string) (app.Step, error)
	CheckPassword(ctx context.Context, policy domain.BruteForcePolicy, accountID string, password domain.SecretString) error
}

type ticketMinter interface {
	Mint(accountID string, sessionID domain.SessionID, flow string) (auth.Ticket, error)
}

type ticketValidator interface {
	Validate(token string) (*auth.TicketClaims, error)
}

var _ verifier = (*app.Service)(nil)

// HandlerConfig holds the dependencies for Handler.
type HandlerConfig struct {
	Service   verifier
	Minter    ticketMinter
	Validator ticketValidator
	// Flows maps the {type} path segment ("email", "mobile") to its flow.
	Flows      map[string]app.Flow
	BruteForce domain.BruteForcePolicy
	Logger     *slog.Logger
}

// Handler serves the verifier API.
type Handler struct {
	svc        verifier
	minter     ticketMinter
	validator  ticketValidator
	flows      map[string]app.Flow
	bruteForce domain.BruteForcePolicy
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		svc:        cfg.Service,
		minter:     cfg.Minter,
		validator:  cfg.Validator,
		flows:      cfg.Flows,
		bruteForce: cfg.BruteForce,
		logger:     cfg.Logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/verifications/{type}/login", h.login)
	mux.HandleFunc("POST /v1/verifications/{type}/begin", h.withTicket(h.begin))
	mux.HandleFunc("POST /v1/verifications/{type}/contact", h.withTicket(h.submitContact))
	mux.HandleFunc("POST /v1/verifications/{type}/change", h.withTicket(h.change))
	mux.HandleFunc("POST /v1/verifications/{type}/resend", h.withTicket(h.resend))
	mux.HandleFunc("POST /v1/verifications/{type}/code", h.withTicket(h.submitCode))
}

type contactRequest struct {
	Value string `json:"value" validate:"required,max=320"`
}

type codeRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type passwordRequest struct {
	AccountID string `json:"account_id" validate:"required,max=255"`
	// Blank passwords are counted as failures, so no required rule.
	Password string `json:"password" validate:"max=1024"`
}

// StepResponse is the body of every verification response.
type StepResponse struct {
	State      domain.State      `json:"state"`
	Contact    string            `json:"contact,omitempty"`
	MessageKey string            `json:"message_key,omitempty"`
	Ticket     string            `json:"ticket,omitempty"`
	ExpiresAt  *time.Time        `json:"ticket_expires_at,omitempty"`
	Error      *errmap.HTTPError `json:"error,omitempty"`
}

// flowCall is a verification operation bound to an authenticated subject.
type flowCall func(w http.ResponseWriter, r *http.Request, flow app.Flow, subject app.Subject)

// login checks the account password and, on success, opens a new session
// for the flow and mints its ticket. It is the only way to obtain one.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var req passwordRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, domain.State(""), err, "")
		return
	}

	err := h.svc.CheckPassword(r.Context(), h.bruteForce, req.AccountID, domain.SecretString(req.Password))
	if err != nil {
		h.writeError(w, r, domain.State(""), err, "")
		return
	}

	sessionID := domain.GenerateSessionID()
	ticket, err := h.minter.Mint(req.AccountID, sessionID, flow.Type.Name)
	if err != nil {
		h.writeError(w, r, domain.State(""), err, "")
		return
	}

	subject := app.Subject{SessionID: sessionID.String(), AccountID: req.AccountID}
	step, err := h.svc.BeginOrResume(r.Context(), flow, subject)
	h.writeStep(w, r, step, err, &ticket)
}

// begin resumes the ticket's session.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request, flow app.Flow, subject app.Subject) {
	step, err := h.svc.BeginOrResume(r.Context(), flow, subject)
	h.writeStep(w, r, step, err, nil)
}

func (h *Handler) submitContact(w http.ResponseWriter, r *http.Request, flow app.Flow, subject app.Subject) {
	var req contactRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, domain.StateAwaitingContact, err, flow.Type.MessageKey(err))
		return
	}
	step, err := h.svc.SubmitContact(r.Context(), flow, subject, req.Value)
	h.writeStep(w, r, step, err, nil)
}

func (h *Handler) change(w http.ResponseWriter, r *http.Request, flow app.Flow, subject app.Subject) {
	step, err := h.svc.RequestChangeValue(r.Context(), flow, subject)
	h.writeStep(w, r, step, err, nil)
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request, flow app.Flow, subject app.Subject) {
	step, err := h.svc.RequestResend(r.Context(), flow, subject)
	h.writeStep(w, r, step, err, nil)
}

func (h *Handler) submitCode(w http.ResponseWriter, r *http.Request, flow app.Flow, subject app.Subject) {
	var req codeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, domain.StateAwaitingCode, err, flow.Type.MessageKey(err))
		return
	}
	step, err := h.svc.SubmitCode(r.Context(), flow, subject, strings.TrimSpace(req.Code))
	h.writeStep(w, r, step, err, nil)
}

// withTicket resolves the flow and the ticket's subject before calling next.
func (h *Handler) withTicket(next flowCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, ok := h.flow(w, r)
		if !ok {
			return
		}
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, r, domain.State(""), fmt.Errorf("missing flow ticket: %w", domain.ErrUnauthorized), "")
			return
		}
		subject, err := h.subject(token, flow)
		if err != nil {
			h.writeError(w, r, domain.State(""), err, "")
			return
		}
		next(w, r, flow, subject)
	}
}

func (h *Handler) flow(w http.ResponseWriter, r *http.Request) (app.Flow, bool) {
	flow, ok := h.flows[r.PathValue("type")]
	if !ok {
		h.writeJSON(w, r, http.StatusNotFound, errorBody(fmt.Errorf("verification type %q: %w", r.PathValue("type"), domain.ErrNotFound)))
		return app.Flow{}, false
	}
	return flow, true
}

// subject validates token and checks it was minted for flow.
func (h *Handler) subject(token string, flow app.Flow) (app.Subject, error) {
	claims, err := h.validator.Validate(token)
	if err != nil {
		return app.Subject{}, err
	}
	if claims.Flow != flow.Type.Name {
		return app.Subject{}, fmt.Errorf("ticket minted for flow %q: %w", claims.Flow, domain.ErrUnauthorized)
	}
	sessionID, err := domain.NewSessionID(claims.SessionID)
	if err != nil {
		return app.Subject{}, fmt.Errorf("ticket session: %w: %w", domain.ErrUnauthorized, err)
	}
	return app.Subject{SessionID: sessionID.String(), AccountID: claims.Subject}, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w: %w", domain.ErrInvalidInput, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("validate request: %w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) writeStep(w http.ResponseWriter, r *http.Request, step app.Step, err error, ticket *auth.Ticket) {
	if err != nil {
		h.writeError(w, r, step.State, err, step.MessageKey, withContact(step.Contact))
		return
	}

	resp := StepResponse{State: step.State, Contact: step.Contact}
	if ticket != nil {
		resp.Ticket = ticket.Token
		resp.ExpiresAt = &ticket.ExpiresAt
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

type errorOption func(*StepResponse)

func withContact(contact string) errorOption {
	return func(resp *StepResponse) { resp.Contact = contact }
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, state domain.State, err error, messageKey string, opts ...errorOption) {
	httpErr := errmap.ToHTTPError(err)
	httpErr.MessageKey = messageKey

	if httpErr.StatusCode >= http.StatusInternalServerError {
		observability.WithTraceID(r.Context(), h.logger).ErrorContext(r.Context(), "verifier request failed",
			"path", r.URL.Path, "error", err)
	}

	resp := StepResponse{State: state, MessageKey: messageKey, Error: &httpErr}
	for _, opt := range opts {
		opt(&resp)
	}
	h.writeJSON(w, r, httpErr.StatusCode, resp)
}

func errorBody(err error) map[string]errmap.HTTPError {
	return map[string]errmap.HTTPError{"error": errmap.ToHTTPError(err)}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.logger.WarnContext(r.Context(), "write response", "error", err)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
