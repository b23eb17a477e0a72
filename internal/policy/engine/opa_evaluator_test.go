package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	devicedomain "bloggers-platform/backend/internal/device/domain"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_AllowRevoke_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	session := &devicedomain.Session{DeviceID: "d1", UserID: "u1"}

	tests := []struct {
		name      string
		requester string
		session   *devicedomain.Session
		want      bool
	}{
		{"owner", "u1", session, true},
		{"other principal", "u2", session, false},
		{"anonymous", "", session, false},
		{"nil session", "u1", nil, false},
		{"ownerless session", "", &devicedomain.Session{DeviceID: "d2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.AllowRevoke(ctx, tt.requester, tt.session)
			if err != nil {
				t.Fatalf("AllowRevoke: %v", err)
			}
			if got != tt.want {
				t.Errorf("AllowRevoke = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	// a stricter policy: never allow revocation from an unnamed device
	policy := `package sessions.devices

default allow = false

allow if {
	input.requester.id == input.device.owner_id
	input.device.title != ""
}
`
	path := filepath.Join(t.TempDir(), "devices.rego")
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	src, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, src)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}

	allowed, err := e.AllowRevoke(ctx, "u1", &devicedomain.Session{DeviceID: "d1", UserID: "u1", Title: "Chrome"})
	if err != nil || !allowed {
		t.Errorf("named device: allowed=%v err=%v, want true", allowed, err)
	}
	allowed, err = e.AllowRevoke(ctx, "u1", &devicedomain.Session{DeviceID: "d2", UserID: "u1"})
	if err != nil || allowed {
		t.Errorf("unnamed device: allowed=%v err=%v, want false", allowed, err)
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package broken\n\nallow if {"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	src, err := LoadPolicyFile("")
	if err != nil || src != DefaultRegoPolicy {
		t.Errorf("empty path should yield default policy, err=%v", err)
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOwnerOnly(t *testing.T) {
	ctx := context.Background()
	s := &devicedomain.Session{DeviceID: "d1", UserID: "u1"}
	if ok, _ := (OwnerOnly{}).AllowRevoke(ctx, "u1", s); !ok {
		t.Error("owner should be allowed")
	}
	if ok, _ := (OwnerOnly{}).AllowRevoke(ctx, "u2", s); ok {
		t.Error("other principal should be denied")
	}
	if ok, _ := (OwnerOnly{}).AllowRevoke(ctx, "u1", nil); ok {
		t.Error("nil session should be denied")
	}
}
