package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/securestore"
)

// Secret names in the store.
const (
	NamePublicID         = "publicId"
	NamePrivateID        = "privateId"
	NameSecret           = "secret"
	NameCredentialSecret = "credentialSecret"
	NameEmail            = "email"
	NamePhone            = "phone"
)

var ErrMissingField = errors.New("identity field is required")

// DeviceIdentity is the set of secrets that make up this device's trust.
// PrivateID, Secret and CredentialSecret never leave the device unencrypted.
type DeviceIdentity struct {
	PublicID         string
	PrivateID        string
	Secret           string
	CredentialSecret string
	Email            string
	Phone            string
	FCMToken         string
}

// Complete gates access to the main application.
func (d DeviceIdentity) Complete() bool {
	return d.PublicID != "" && d.PrivateID != "" && d.Secret != "" && d.Email != "" && d.Phone != ""
}

// HasTrust reports whether the device handle triple is present.
func (d DeviceIdentity) HasTrust() bool {
	return d.PublicID != "" && d.PrivateID != "" && d.Secret != ""
}

// Missing lists the names of absent completeness fields.
func (d DeviceIdentity) Missing() []string {
	var out []string
	for _, f := range []struct {
		name, value string
	}{
		{NamePublicID, d.PublicID},
		{NamePrivateID, d.PrivateID},
		{NameSecret, d.Secret},
		{NameEmail, d.Email},
		{NamePhone, d.Phone},
	} {
		if f.value == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// RequireComplete returns a faults.ErrIdentityIncomplete error naming the gaps.
func (d DeviceIdentity) RequireComplete() error {
	if missing := d.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", faults.ErrIdentityIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// Policies applied when each name is written.
var policies = map[string]securestore.AccessPolicy{
	NamePublicID:         securestore.PolicyNone,
	NamePrivateID:        securestore.PolicyBiometryCurrentSet,
	NameSecret:           securestore.PolicyBiometryCurrentSet,
	NameCredentialSecret: securestore.PolicyBiometryAny,
	NameEmail:            securestore.PolicyNone,
	NamePhone:            securestore.PolicyNone,
}

func PolicyFor(name string) securestore.AccessPolicy {
	return policies[name]
}

// Status is the prompt-free registration view used by the shell.
type Status struct {
	Registered          bool     `json:"registered"`
	HasCredentialSecret bool     `json:"has_credential_secret"`
	Complete            bool     `json:"complete"`
	Missing             []string `json:"missing,omitempty"`
}

// Repository reads and writes a DeviceIdentity against a secret store.
type Repository struct {
	store securestore.BatchStore
}

func NewRepository(store securestore.BatchStore) *Repository {
	return &Repository{store: store}
}

// Load reads every persisted field. Gated entries block on the platform
// prompt unless ctx already carries a granted decision.
func (r *Repository) Load(ctx context.Context) (DeviceIdentity, error) {
	var out DeviceIdentity
	fields := []struct {
		name string
		dst  *string
	}{
		{NamePublicID, &out.PublicID},
		{NamePrivateID, &out.PrivateID},
		{NameSecret, &out.Secret},
		{NameCredentialSecret, &out.CredentialSecret},
		{NameEmail, &out.Email},
		{NamePhone, &out.Phone},
	}
	for _, f := range fields {
		v, err := r.get(ctx, f.name)
		if err != nil {
			return DeviceIdentity{}, err
		}
		*f.dst = v
	}
	return out, nil
}

func (r *Repository) get(ctx context.Context, name string) (string, error) {
	raw, ok, err := r.store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if !ok {
		return "", nil
	}
	return string(raw), nil
}

// SaveTrust writes publicId, privateId and secret in one batch.
func (r *Repository) SaveTrust(ctx context.Context, publicID, privateID, secret string) error {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" || privateID == "" || secret == "" {
		return fmt.Errorf("%w: publicId, privateId and secret", ErrMissingField)
	}
	return r.store.SetBatch(ctx, []securestore.Entry{
		entry(NamePublicID, publicID),
		entry(NamePrivateID, privateID),
		entry(NameSecret, secret),
	})
}

func (r *Repository) SaveCredentialSecret(ctx context.Context, credentialSecret string) error {
	if credentialSecret == "" {
		return fmt.Errorf("%w: credentialSecret", ErrMissingField)
	}
	return r.store.SetBatch(ctx, []securestore.Entry{entry(NameCredentialSecret, credentialSecret)})
}

// SaveRecovery writes the recovery contact pair together.
func (r *Repository) SaveRecovery(ctx context.Context, email, phone string) error {
	email, phone = strings.TrimSpace(email), strings.TrimSpace(phone)
	if email == "" || phone == "" {
		return fmt.Errorf("%w: email and phone", ErrMissingField)
	}
	return r.store.SetBatch(ctx, []securestore.Entry{
		entry(NameEmail, email),
		entry(NamePhone, phone),
	})
}

// Status checks presence only and never prompts.
func (r *Repository) Status(ctx context.Context) (Status, error) {
	present := make(map[string]bool, len(policies))
	for name := range policies {
		ok, err := r.store.Exists(ctx, name)
		if err != nil {
			return Status{}, fmt.Errorf("check %s: %w", name, err)
		}
		present[name] = ok
	}
	var seen DeviceIdentity
	if present[NamePublicID] {
		seen.PublicID = "x"
	}
	if present[NamePrivateID] {
		seen.PrivateID = "x"
	}
	if present[NameSecret] {
		seen.Secret = "x"
	}
	if present[NameEmail] {
		seen.Email = "x"
	}
	if present[NamePhone] {
		seen.Phone = "x"
	}
	return Status{
		Registered:          seen.HasTrust(),
		HasCredentialSecret: present[NameCredentialSecret],
		Complete:            seen.Complete(),
		Missing:             seen.Missing(),
	}, nil
}

func entry(name, value string) securestore.Entry {
	return securestore.Entry{Name: name, Value: []byte(value), Policy: PolicyFor(name)}
}
