package securestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/testutil/fsperm"
)

type fakeUnlocker struct {
	enrollment string
	err        error
	calls      []AccessPolicy
}

func (f *fakeUnlocker) Unlock(_ context.Context, policy AccessPolicy) error {
	f.calls = append(f.calls, policy)
	return f.err
}

func (f *fakeUnlocker) EnrollmentID(_ context.Context) (string, error) {
	return f.enrollment, nil
}

func TestVaultPlainEntryDoesNotPrompt(t *testing.T) {
	ctx := context.Background()
	u := &fakeUnlocker{enrollment: "set-1"}
	v := NewVault(NewMemoryBackend(), u)

	if err := v.Set(ctx, "publicId", []byte("P1"), PolicyNone); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, ok, err := v.Get(ctx, "publicId")
	if err != nil || !ok || string(got) != "P1" {
		t.Fatalf("get = %q %v %v", got, ok, err)
	}
	if len(u.calls) != 0 {
		t.Fatalf("plain read prompted %d times", len(u.calls))
	}
}

func TestVaultGatedReadPropagatesCancel(t *testing.T) {
	ctx := context.Background()
	u := &fakeUnlocker{enrollment: "set-1"}
	v := NewVault(NewMemoryBackend(), u)
	if err := v.Set(ctx, "secret", []byte("S1"), PolicyBiometryAny); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	u.err = ErrCancelled
	_, ok, err := v.Get(ctx, "secret")
	if ok || !errors.Is(err, faults.ErrAuthCancelled) {
		t.Fatalf("expected cancelled read, got ok=%v err=%v", ok, err)
	}

	u.err = nil
	got, ok, err := v.Get(ctx, "secret")
	if err != nil || !ok || string(got) != "S1" {
		t.Fatalf("retry get = %q %v %v", got, ok, err)
	}
	if len(u.calls) != 2 || u.calls[0] != PolicyBiometryAny {
		t.Fatalf("unexpected unlock calls: %v", u.calls)
	}
}

func TestVaultCurrentSetInvalidatedOnEnrollmentChange(t *testing.T) {
	ctx := context.Background()
	u := &fakeUnlocker{enrollment: "set-1"}
	v := NewVault(NewMemoryBackend(), u)
	if err := v.Set(ctx, "privateId", []byte("PR1"), PolicyBiometryCurrentSet); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	u.enrollment = "set-2"
	if _, _, err := v.Get(ctx, "privateId"); !errors.Is(err, ErrInvalidated) {
		t.Fatalf("expected ErrInvalidated, got %v", err)
	}
	exists, err := v.Exists(ctx, "privateId")
	if err != nil || exists {
		t.Fatalf("invalidated entry still exists: %v %v", exists, err)
	}
}

func TestVaultInvalidatesWholeCurrentSetGroupAfterUnlock(t *testing.T) {
	ctx := context.Background()
	u := &fakeUnlocker{enrollment: "set-1"}
	v := NewVault(NewMemoryBackend(), u)
	err := v.SetBatch(ctx, []Entry{
		{Name: "publicId", Value: []byte("P1"), Policy: PolicyNone},
		{Name: "privateId", Value: []byte("PR1"), Policy: PolicyBiometryCurrentSet},
		{Name: "secret", Value: []byte("S1"), Policy: PolicyBiometryCurrentSet},
	})
	if err != nil {
		t.Fatalf("set batch failed: %v", err)
	}

	u.enrollment = "set-2"
	u.err = ErrDenied
	if _, _, err := v.Get(ctx, "privateId"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected denied read, got %v", err)
	}
	for _, name := range []string{"privateId", "secret"} {
		if ok, _ := v.Exists(ctx, name); !ok {
			t.Fatalf("%s removed without a successful unlock", name)
		}
	}

	u.err = nil
	if _, _, err := v.Get(ctx, "privateId"); !errors.Is(err, ErrInvalidated) {
		t.Fatalf("expected ErrInvalidated, got %v", err)
	}
	for _, name := range []string{"privateId", "secret"} {
		if ok, _ := v.Exists(ctx, name); ok {
			t.Fatalf("%s survived invalidation", name)
		}
	}
	if ok, _ := v.Exists(ctx, "publicId"); !ok {
		t.Fatal("ungated entries must survive invalidation")
	}
}

func TestVaultRefusesUnknownEnrollment(t *testing.T) {
	ctx := context.Background()
	u := &fakeUnlocker{}
	v := NewVault(NewMemoryBackend(), u)

	err := v.SetBatch(ctx, []Entry{
		{Name: "publicId", Value: []byte("P1"), Policy: PolicyNone},
		{Name: "secret", Value: []byte("S1"), Policy: PolicyBiometryCurrentSet},
	})
	if !errors.Is(err, ErrEnrollmentUnknown) || !errors.Is(err, faults.ErrAuthDenied) {
		t.Fatalf("expected ErrEnrollmentUnknown, got %v", err)
	}
	if ok, _ := v.Exists(ctx, "publicId"); ok {
		t.Fatal("batch must not be partially written")
	}

	u.enrollment = "set-1"
	if err := v.Set(ctx, "secret", []byte("S1"), PolicyBiometryCurrentSet); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	u.enrollment = ""
	if _, _, err := v.Get(ctx, "secret"); !errors.Is(err, ErrEnrollmentUnknown) {
		t.Fatalf("expected ErrEnrollmentUnknown on read, got %v", err)
	}
	if ok, _ := v.Exists(ctx, "secret"); !ok {
		t.Fatal("an unknown enrollment must not invalidate entries")
	}
}

func TestVaultRejectsEmptyName(t *testing.T) {
	v := NewMemory()
	if err := v.Set(context.Background(), "  ", []byte("x"), PolicyNone); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestFileBackendPersistsEncrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault", "secrets.enc")
	backend, err := NewFileBackend(path, "device-passphrase")
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	v := NewVault(backend, &fakeUnlocker{enrollment: "set-1"})
	err = v.SetBatch(ctx, []Entry{
		{Name: "publicId", Value: []byte("P1"), Policy: PolicyNone},
		{Name: "secret", Value: []byte("S1-very-secret"), Policy: PolicyBiometryCurrentSet},
	})
	if err != nil {
		t.Fatalf("set batch failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(raw), "S1-very-secret") || !strings.HasPrefix(string(raw), filePrefix) {
		t.Fatal("secret file is not encrypted")
	}
	fsperm.AssertSecretFile(t, filepath.Dir(path), path)

	reopened, err := NewFileBackend(path, "device-passphrase")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v2 := NewVault(reopened, &fakeUnlocker{enrollment: "set-1"})
	got, ok, err := v2.Get(ctx, "secret")
	if err != nil || !ok || string(got) != "S1-very-secret" {
		t.Fatalf("get after reopen = %q %v %v", got, ok, err)
	}

	wrong, _ := NewFileBackend(path, "other")
	if _, _, err := NewVault(wrong, nil).Get(ctx, "publicId"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed with wrong passphrase, got %v", err)
	}
}
