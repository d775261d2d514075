// Package privacylog keeps key material, credentials and recovery contacts
// out of structured logs, and replaces device and target identifiers with
// per-boot fingerprints.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

type action int

const (
	keep action = iota
	redact
	fingerprint
)

var (
	bootNonce = newNonce()

	// Any key containing one of these is redacted.
	sensitiveParts = []string{
		"secret", "private", "password", "passphrase", "credential",
		"token", "auth", "envelope", "email", "phone",
	}
	// Exact keys whose values are replaced by a fingerprint.
	fingerprinted = map[string]struct{}{
		"public_id": {},
		"target_id": {},
		"window_id": {},
		"device_id": {},
	}
)

func classify(key string) action {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveParts {
		if strings.Contains(key, part) {
			return redact
		}
	}
	if _, ok := fingerprinted[key]; ok {
		return fingerprint
	}
	return keep
}

// Handler sanitizes attributes before passing records to next.
type Handler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(Sanitize(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(sanitizeAll(attrs))}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// Sanitize applies the redaction rules to one attribute, descending into groups.
func Sanitize(a slog.Attr) slog.Attr {
	switch classify(a.Key) {
	case redact:
		return slog.String(a.Key, redacted)
	case fingerprint:
		return slog.String(fingerprintKey(a.Key), Fingerprint(render(a.Value.Resolve())))
	}
	if a.Value.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizeAll(a.Value.Group())...)}
	}
	return a
}

// Fingerprint is stable for the life of the process and unlinkable across boots.
func Fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(bootNonce + "|" + value))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = Sanitize(a)
	}
	return out
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(key, "_fp") {
		return key
	}
	return key + "_fp"
}

func render(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v.Any())
	}
}

func newNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("boot-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
