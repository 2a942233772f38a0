package port_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/verifier/app"
	"github.com/sequentech/message-otp/internal/verifier/port"
)

const testAccountID = "acct-1"

// stubVerifier records the subject of each call and returns canned results.
type stubVerifier struct {
	beginFn    func(flow app.Flow, subject app.Subject) (app.Step, error)
	contactFn  func(flow app.Flow, subject app.Subject, raw string) (app.Step, error)
	changeFn   func(flow app.Flow, subject app.Subject) (app.Step, error)
	resendFn   func(flow app.Flow, subject app.Subject) (app.Step, error)
	codeFn     func(flow app.Flow, subject app.Subject, submitted string) (app.Step, error)
	passwordFn func(accountID string, password domain.SecretString) error
}

func (s *stubVerifier) BeginOrResume(_ context.Context, flow app.Flow, subject app.Subject) (app.Step, error) {
	return s.beginFn(flow, subject)
}

func (s *stubVerifier) SubmitContact(_ context.Context, flow app.Flow, subject app.Subject, raw string) (app.Step, error) {
	return s.contactFn(flow, subject, raw)
}

func (s *stubVerifier) RequestChangeValue(_ context.Context, flow app.Flow, subject app.Subject) (app.Step, error) {
	return s.changeFn(flow, subject)
}

func (s *stubVerifier) RequestResend(_ context.Context, flow app.Flow, subject app.Subject) (app.Step, error) {
	return s.resendFn(flow, subject)
}

func (s *stubVerifier) SubmitCode(_ context.Context, flow app.Flow, subject app.Subject, submitted string) (app.Step, error) {
	return s.codeFn(flow, subject, submitted)
}

func (s *stubVerifier) CheckPassword(_ context.Context, _ domain.BruteForcePolicy, accountID string, password domain.SecretString) error {
	return s.passwordFn(accountID, password)
}

type testEnv struct {
	server *httptest.Server
	minter *auth.TicketMinter
	svc    *stubVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	keyStore, err := auth.NewEphemeralKeyStore("test-key")
	require.NoError(t, err)
	cfg := auth.TicketConfig{
		KeyStore: keyStore,
		TTL:      10 * time.Minute,
		Issuer:   "message-otp",
		Audience: "verifier",
		Clock:    domain.RealClock{},
	}

	svc := &stubVerifier{}
	h := port.NewHandler(port.HandlerConfig{
		Service:   svc,
		Minter:    auth.NewTicketMinter(cfg),
		Validator: auth.NewTicketValidator(cfg),
		Flows: map[string]app.Flow{
			"email":  app.EmailFlow(domain.DefaultVerificationConfig()),
			"mobile": app.MobileFlow(domain.DefaultVerificationConfig(), ""),
		},
		BruteForce: domain.BruteForcePolicy{Enabled: true, FailureFactor: 3, WaitIncrement: time.Minute},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, minter: auth.NewTicketMinter(cfg), svc: svc}
}

func (e *testEnv) ticket(t *testing.T, flow string) (string, string) {
	t.Helper()
	sessionID := domain.GenerateSessionID()
	ticket, err := e.minter.Mint(testAccountID, sessionID, flow)
	require.NoError(t, err)
	return ticket.Token, sessionID.String()
}

func (e *testEnv) post(t *testing.T, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %v", body)
	code, _ := errBody["code"].(string)
	return code
}

func TestBegin(t *testing.T) {
	t.Run("success: resumes the ticket's session", func(t *testing.T) {
		env := newTestEnv(t)
		token, sessionID := env.ticket(t, "reset-mobile")
		env.svc.beginFn = func(_ app.Flow, subject app.Subject) (app.Step, error) {
			assert.Equal(t, sessionID, subject.SessionID)
			assert.Equal(t, testAccountID, subject.AccountID)
			return app.Step{State: domain.StateAwaitingCode, Contact: "+34600000000"}, nil
		}

		resp, body := env.post(t, "/v1/verifications/mobile/begin", token, "")

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, string(domain.StateAwaitingCode), body["state"])
		assert.Equal(t, "+34600000000", body["contact"])
		assert.Nil(t, body["ticket"])
	})

	t.Run("error: no ticket, account in the body", func(t *testing.T) {
		env := newTestEnv(t)
		called := false
		env.svc.beginFn = func(app.Flow, app.Subject) (app.Step, error) {
			called = true
			return app.Step{State: domain.StateAwaitingContact}, nil
		}

		resp, body := env.post(t, "/v1/verifications/email/begin", "", `{"account_id":"victim"}`)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, body))
		assert.Nil(t, body["ticket"])
		assert.False(t, called)
	})

	t.Run("error: unknown verification type", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")

		resp, _ := env.post(t, "/v1/verifications/fax/begin", token, "")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("error: restart required", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")
		env.svc.beginFn = func(flow app.Flow, _ app.Subject) (app.Step, error) {
			err := fmt.Errorf("stale code: %w", domain.ErrInternalState)
			return app.Step{State: domain.StateAwaitingContact, MessageKey: flow.Type.MessageKey(err)}, err
		}

		resp, body := env.post(t, "/v1/verifications/email/begin", token, "")

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "FLOW_RESTART_REQUIRED", errorCode(t, body))
		assert.Equal(t, "emailOtp.auth.error.internalError", body["message_key"])
	})
}

func TestTicketRequired(t *testing.T) {
	paths := []string{
		"/v1/verifications/email/begin",
		"/v1/verifications/email/contact",
		"/v1/verifications/email/change",
		"/v1/verifications/email/resend",
		"/v1/verifications/email/code",
	}

	for _, path := range paths {
		t.Run("error: no ticket on "+path, func(t *testing.T) {
			env := newTestEnv(t)

			resp, body := env.post(t, path, "", `{}`)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "UNAUTHENTICATED", errorCode(t, body))
		})
	}

	t.Run("error: ticket minted for another flow", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-mobile")

		resp, body := env.post(t, "/v1/verifications/email/resend", token, "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, body))
	})

	t.Run("error: forged ticket", func(t *testing.T) {
		env := newTestEnv(t)

		resp, _ := env.post(t, "/v1/verifications/email/resend", "not-a-jwt", "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestSubmitContact(t *testing.T) {
	t.Run("success: code sent", func(t *testing.T) {
		env := newTestEnv(t)
		token, sessionID := env.ticket(t, "reset-email")
		env.svc.contactFn = func(_ app.Flow, subject app.Subject, raw string) (app.Step, error) {
			assert.Equal(t, sessionID, subject.SessionID)
			assert.Equal(t, "user@example.com", raw)
			return app.Step{State: domain.StateAwaitingCode, Contact: raw}, nil
		}

		resp, body := env.post(t, "/v1/verifications/email/contact", token, `{"value":"user@example.com"}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, string(domain.StateAwaitingCode), body["state"])
		assert.Equal(t, "user@example.com", body["contact"])
	})

	t.Run("error: invalid country keeps the contact", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-mobile")
		env.svc.contactFn = func(flow app.Flow, _ app.Subject, raw string) (app.Step, error) {
			err := domain.ErrInvalidCountry
			return app.Step{State: domain.StateAwaitingCode, Contact: raw, MessageKey: flow.Type.MessageKey(err)}, err
		}

		resp, body := env.post(t, "/v1/verifications/mobile/contact", token, `{"value":"+15550100"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_COUNTRY", errorCode(t, body))
		assert.Equal(t, "+15550100", body["contact"])
		assert.Equal(t, "mobileOtp.auth.error.invalidCountry", body["message_key"])
	})

	t.Run("error: unknown body field", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")

		resp, body := env.post(t, "/v1/verifications/email/contact", token, `{"value":"a@b.c","extra":1}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "emailOtp.auth.error.invalidInput", body["message_key"])
	})

	t.Run("error: body too large", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")
		big := `{"value":"` + strings.Repeat("a", domain.MaxRequestBodyBytes) + `"}`

		resp, _ := env.post(t, "/v1/verifications/email/contact", token, big)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestChangeAndResend(t *testing.T) {
	t.Run("success: change returns to contact entry", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")
		env.svc.changeFn = func(app.Flow, app.Subject) (app.Step, error) {
			return app.Step{State: domain.StateAwaitingContact}, nil
		}

		resp, body := env.post(t, "/v1/verifications/email/change", token, "")

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, string(domain.StateAwaitingContact), body["state"])
	})

	t.Run("error: resend too soon", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")
		env.svc.resendFn = func(flow app.Flow, _ app.Subject) (app.Step, error) {
			err := domain.ErrResendTooSoon
			return app.Step{State: domain.StateAwaitingCode, Contact: "user@example.com", MessageKey: flow.Type.MessageKey(err)}, err
		}

		resp, body := env.post(t, "/v1/verifications/email/resend", token, "")

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "RESEND_TOO_SOON", errorCode(t, body))
		assert.Equal(t, "emailOtp.auth.error.resendTimer", body["message_key"])
	})
}

func TestSubmitCode(t *testing.T) {
	t.Run("success: verified", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.ticket(t, "reset-email")
		env.svc.codeFn = func(_ app.Flow, _ app.Subject, submitted string) (app.Step, error) {
			assert.Equal(t, "123456", submitted)
			return app.Step{State: domain.StateVerified, Contact: "user@example.com"}, nil
		}

		resp, body := env.post(t, "/v1/verifications/email/code", token, `{"code":" 123456 "}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, string(domain.StateVerified), body["state"])
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"error: wrong code", domain.ErrCodeInvalid, http.StatusUnauthorized, "INVALID_CODE"},
		{"error: expired code", domain.ErrCodeExpired, http.StatusUnauthorized, "CODE_EXPIRED"},
		{"error: receiver reused", domain.ErrMaxReceiverReuse, http.StatusConflict, "MAX_RECEIVER_REUSE"},
		{"error: store down", domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			token, _ := env.ticket(t, "reset-email")
			env.svc.codeFn = func(flow app.Flow, _ app.Subject, _ string) (app.Step, error) {
				return app.Step{State: domain.StateAwaitingCode, MessageKey: flow.Type.MessageKey(tt.err)}, tt.err
			}

			resp, body := env.post(t, "/v1/verifications/email/code", token, `{"code":"000000"}`)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, errorCode(t, body))
			assert.Equal(t, string(domain.StateAwaitingCode), body["state"])
		})
	}
}

func TestLogin(t *testing.T) {
	t.Run("success: ticket for the authenticated account", func(t *testing.T) {
		env := newTestEnv(t)
		env.svc.passwordFn = func(accountID string, password domain.SecretString) error {
			assert.Equal(t, testAccountID, accountID)
			assert.Equal(t, "hunter2", password.Expose())
			return nil
		}
		var started app.Subject
		env.svc.beginFn = func(flow app.Flow, subject app.Subject) (app.Step, error) {
			assert.Equal(t, "reset-email", flow.Type.Name)
			started = subject
			return app.Step{State: domain.StateAwaitingContact}, nil
		}

		resp, body := env.post(t, "/v1/verifications/email/login", "", `{"account_id":"acct-1","password":"hunter2"}`)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, string(domain.StateAwaitingContact), body["state"])
		assert.NotEmpty(t, body["ticket_expires_at"])
		token, ok := body["ticket"].(string)
		require.True(t, ok)
		assert.Equal(t, testAccountID, started.AccountID)
		assert.NotEmpty(t, started.SessionID)

		t.Run("ticket resumes the same session", func(t *testing.T) {
			env.svc.beginFn = func(_ app.Flow, subject app.Subject) (app.Step, error) {
				assert.Equal(t, started, subject)
				return app.Step{State: domain.StateAwaitingContact}, nil
			}

			resp, _ := env.post(t, "/v1/verifications/email/begin", token, "")

			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})

		t.Run("ticket is bound to its flow", func(t *testing.T) {
			resp, _ := env.post(t, "/v1/verifications/mobile/begin", token, "")

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})

	t.Run("error: wrong password issues no ticket", func(t *testing.T) {
		env := newTestEnv(t)
		env.svc.passwordFn = func(string, domain.SecretString) error {
			return domain.ErrUnauthorized
		}
		opened := false
		env.svc.beginFn = func(app.Flow, app.Subject) (app.Step, error) {
			opened = true
			return app.Step{}, nil
		}

		resp, body := env.post(t, "/v1/verifications/email/login", "", `{"account_id":"acct-1","password":"guess"}`)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, body))
		assert.Nil(t, body["ticket"])
		assert.False(t, opened)
	})

	t.Run("error: blank password reaches the check", func(t *testing.T) {
		env := newTestEnv(t)
		called := false
		env.svc.passwordFn = func(string, domain.SecretString) error {
			called = true
			return domain.ErrUnauthorized
		}

		resp, body := env.post(t, "/v1/verifications/email/login", "", `{"account_id":"acct-1","password":""}`)

		assert.True(t, called)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, body))
	})

	t.Run("error: temporarily disabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.svc.passwordFn = func(string, domain.SecretString) error {
			return domain.ErrTemporarilyDisabled
		}

		resp, body := env.post(t, "/v1/verifications/mobile/login", "", `{"account_id":"acct-1","password":"x"}`)

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "TEMPORARILY_DISABLED", errorCode(t, body))
		assert.Nil(t, body["ticket"])
	})

	t.Run("error: missing account", func(t *testing.T) {
		env := newTestEnv(t)

		resp, body := env.post(t, "/v1/verifications/email/login", "", `{"password":"x"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, body))
	})

	t.Run("error: unknown verification type", func(t *testing.T) {
		env := newTestEnv(t)

		resp, _ := env.post(t, "/v1/verifications/fax/login", "", `{"account_id":"acct-1","password":"x"}`)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
