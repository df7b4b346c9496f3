package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

// ========================================
// Context Value Tests
// ========================================

func TestContextValues(t *testing.T) {
	tests := []struct {
		name       string
		ctx        context.Context
		wantUserID string
		wantCaller string
	}{
		{"empty", context.Background(), "", ""},
		{"user only", WithUserID(context.Background(), "42"), "42", ""},
		{"caller only", WithCaller(context.Background(), "telegram-bot"), "", "telegram-bot"},
		{"both", WithCaller(WithUserID(context.Background(), "42"), "ops"), "42", "ops"},
		{"latest value wins", WithUserID(WithUserID(context.Background(), "1"), "2"), "2", ""},
		{"foreign value type", context.WithValue(context.Background(), UserIDKey, 42), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetUserID(tt.ctx); got != tt.wantUserID {
				t.Errorf("GetUserID() = %q, want %q", got, tt.wantUserID)
			}
			if got := GetCaller(tt.ctx); got != tt.wantCaller {
				t.Errorf("GetCaller() = %q, want %q", got, tt.wantCaller)
			}
		})
	}
}

// ========================================
// FromContext Tests
// ========================================

// logRecord writes one record through FromContext and decodes it.
func logRecord(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	FromContext(ctx, base).Info("message validated")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("failed to decode record %q: %v", buf.String(), err)
	}
	return rec
}

func TestFromContext_Enrichment(t *testing.T) {
	ctx := WithCaller(WithUserID(context.Background(), "42"), "telegram-bot")
	rec := logRecord(t, ctx)

	if rec["user_id"] != "42" {
		t.Errorf("user_id = %v, want 42", rec["user_id"])
	}
	if rec["caller"] != "telegram-bot" {
		t.Errorf("caller = %v, want telegram-bot", rec["caller"])
	}
}

func TestFromContext_PartialContext(t *testing.T) {
	rec := logRecord(t, WithCaller(context.Background(), "ops"))

	if _, ok := rec["user_id"]; ok {
		t.Errorf("user_id should be absent, record = %v", rec)
	}
	if rec["caller"] != "ops" {
		t.Errorf("caller = %v, want ops", rec["caller"])
	}
}

func TestFromContext_ReturnsBaseLogger(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	//nolint:staticcheck // a nil context is accepted
	if got := FromContext(nil, base); got != base {
		t.Error("FromContext(nil) should return the base logger")
	}
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() without values should return the base logger")
	}
	if got := FromContext(WithUserID(context.Background(), "42"), base); got == base {
		t.Error("FromContext() with a user id should derive a new logger")
	}
}
