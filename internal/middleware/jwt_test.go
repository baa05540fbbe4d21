package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rentchat/internal/user"
)

type stubAuth struct {
	ids map[string]user.Identity
	err error
}

func (s stubAuth) Authenticate(_ context.Context, token string) (user.Identity, error) {
	if s.err != nil {
		return user.Identity{}, s.err
	}
	if token == "" {
		return user.Identity{}, user.ErrMissingToken
	}
	id, ok := s.ids[token]
	if !ok {
		return user.Identity{}, user.ErrInvalidToken
	}
	return id, nil
}

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := user.IdentityFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(id.UserID))
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "query fallback", query: "?token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?token=xyz", want: "abc"},
		{name: "malformed header", header: "abc", want: ""},
		{name: "none", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(r); got != tt.want {
				t.Fatalf("got=%q want=%q", got, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_Handle(t *testing.T) {
	t.Parallel()

	auth := stubAuth{ids: map[string]user.Identity{"good": {UserID: "u1", Role: user.RoleCustomer}}}
	h := NewAuthMiddleware(auth, nil).Handle(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name    string
		auth    Authenticator
		header  string
		status  int
		message string
	}{
		{name: "ok", auth: auth, header: "Bearer good", status: http.StatusOK},
		{name: "missing", auth: auth, status: http.StatusUnauthorized, message: "No authentication token, access denied"},
		{name: "invalid", auth: auth, header: "Bearer bad", status: http.StatusUnauthorized, message: "Token is not valid"},
		{name: "deleted user", auth: stubAuth{err: user.ErrUserNotFound}, header: "Bearer good", status: http.StatusUnauthorized, message: "Token is not valid"},
		{name: "store down", auth: stubAuth{err: errors.New("db down")}, header: "Bearer good", status: http.StatusInternalServerError, message: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := h
			if tt.auth != nil {
				handler = NewAuthMiddleware(tt.auth, nil).Handle(http.HandlerFunc(echoIdentity))
			}
			r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			if rec.Code != tt.status {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusOK {
				if rec.Body.String() != "u1" {
					t.Fatalf("identity not attached, body=%q", rec.Body.String())
				}
				return
			}
			var body struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Message != tt.message {
				t.Fatalf("body=%+v want message %q", body, tt.message)
			}
		})
	}
}

func TestAuthMiddleware_HandleHandshake(t *testing.T) {
	t.Parallel()

	auth := stubAuth{ids: map[string]user.Identity{"good": {UserID: "u1"}}}
	h := NewAuthMiddleware(auth, nil).HandleHandshake(http.HandlerFunc(echoIdentity))

	for _, target := range []string{"/ws", "/ws?token=bad"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status=%d", target, rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["message"] != "Authentication error" || body["success"] != false {
			t.Fatalf("%s: body=%v", target, body)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}
