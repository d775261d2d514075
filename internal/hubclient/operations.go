package hubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/clone"
	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/identity"
	"zerointrusion/vault-client/pkg/models"
)

// Operation names used for spans, metrics and logs.
const (
	OpRegisterDevice        = "register_device"
	OpRecoverySettings      = "recovery_settings"
	OpSystemHubRegistration = "system_hub_registration"
	OpSystemHubLogin        = "system_hub_login"
	OpSharedRegistration    = "shared_registration"
	OpAccessFetch           = "access_fetch"
	OpAccess                = "access"
	OpDelete                = "delete"
)

var (
	ErrPrivacyPolicyRequired = errors.New("privacy policy must be accepted")
	// ErrAlreadyRegistered guards an existing trust triple; only a clone
	// import may replace it.
	ErrAlreadyRegistered = errors.New("device is already registered")
)

// RegisterDevice fetches a fresh publicId/privateId/secret triple. It runs
// before the device has an identity and is therefore unsigned.
func (c *Client) RegisterDevice(ctx context.Context) error {
	status, err := c.repo.Status(ctx)
	if err != nil {
		return err
	}
	if status.Registered {
		return ErrAlreadyRegistered
	}
	var wrapped struct {
		Content string `json:"content"`
	}
	if err := c.exchange(ctx, OpRegisterDevice, http.MethodGet, c.endpoints.DeviceRegistration, "", nil, &wrapped); err != nil {
		return err
	}
	var content struct {
		PrivateSecret struct {
			PublicID  string `json:"publicId"`
			PrivateID string `json:"privateId"`
			Secret    string `json:"secret"`
		} `json:"privateSecret"`
	}
	if err := json.Unmarshal([]byte(wrapped.Content), &content); err != nil {
		return faults.Malformed("device registration content", err)
	}
	ps := content.PrivateSecret
	if ps.PublicID == "" || ps.PrivateID == "" || ps.Secret == "" {
		return faults.Malformed("device registration content is missing identity fields", nil)
	}
	if err := c.repo.SaveTrust(ctx, ps.PublicID, ps.PrivateID, ps.Secret); err != nil {
		return fmt.Errorf("store device identity: %w", err)
	}
	c.logger.Info("device registered", "public_id", ps.PublicID)
	return nil
}

type InitResult struct {
	Registered              bool `json:"registered"`
	CredentialSecretCreated bool `json:"credential_secret_created"`
}

// Initialize brings the device to the point where registration can proceed:
// it fetches the identity triple if absent and creates the vault key locally.
func (c *Client) Initialize(ctx context.Context) (InitResult, error) {
	var res InitResult
	status, err := c.repo.Status(ctx)
	if err != nil {
		return res, err
	}
	if !status.Registered {
		if err := c.RegisterDevice(ctx); err != nil {
			return res, err
		}
		res.Registered = true
	}
	if !status.HasCredentialSecret {
		secret, err := c.cipher.NewSecret()
		if err != nil {
			return res, err
		}
		if err := c.repo.SaveCredentialSecret(ctx, secret); err != nil {
			return res, fmt.Errorf("store credential secret: %w", err)
		}
		res.CredentialSecretCreated = true
	}
	return res, nil
}

// Recovery is the contact data submitted from the registration screen.
type Recovery struct {
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PrivacyPolicy bool   `json:"privacy_policy"`
	FCMToken      string `json:"fcm_token"`
}

// UpdateRecovery stores the recovery contact and reports it to the hub,
// which completes the identity.
func (c *Client) UpdateRecovery(ctx context.Context, r Recovery) error {
	if !r.PrivacyPolicy {
		return ErrPrivacyPolicyRequired
	}
	if err := c.repo.SaveRecovery(ctx, r.Email, r.Phone); err != nil {
		return err
	}
	ctx, id, err := c.release(ctx, biometric.ClassIdentity)
	if err != nil {
		return err
	}
	if !id.HasTrust() {
		return id.RequireComplete()
	}
	sealed, err := c.cipher.SealString(id.PrivateID, id.Secret)
	if err != nil {
		return err
	}
	body := map[string]any{
		"publicId":      id.PublicID,
		"privateId":     sealed,
		"email":         id.Email,
		"phone":         id.Phone,
		"privacyPolicy": r.PrivacyPolicy,
		"fcmToken":      r.FCMToken,
	}
	return c.post(ctx, OpRecoverySettings, c.endpoints.RecoverySettings, "", body, nil)
}

// signed authorizes, loads a complete identity and builds the common body.
func (c *Client) signed(ctx context.Context, p models.Payload) (context.Context, identity.DeviceIdentity, map[string]any, error) {
	ctx, id, err := c.release(ctx, biometric.ClassIdentity)
	if err != nil {
		return ctx, id, nil, err
	}
	if err := id.RequireComplete(); err != nil {
		return ctx, id, nil, err
	}
	body, err := c.signedBody(id, p)
	if err != nil {
		return ctx, id, nil, err
	}
	return ctx, id, body, nil
}

func requireVaultKey(id identity.DeviceIdentity) error {
	if id.CredentialSecret == "" {
		return fmt.Errorf("%w: missing %s", faults.ErrIdentityIncomplete, identity.NameCredentialSecret)
	}
	return nil
}

// SystemHubRegistration registers the hub itself as a credential target,
// with a throwaway random secret sealed under the device secret.
func (c *Client) SystemHubRegistration(ctx context.Context, p models.Payload) error {
	ctx, id, body, err := c.signed(ctx, p)
	if err != nil {
		return err
	}
	hubSecret, err := c.cipher.NewSecret()
	if err != nil {
		return err
	}
	userCredential, err := c.cipher.SealString(hubSecret, id.Secret)
	if err != nil {
		return err
	}
	body["update"] = p["isNew"]
	body["source"] = "extension"
	body["xExtensionAuth"] = p.AuthToken()
	body["description"] = ""
	body["userCredential"] = userCredential
	return c.post(ctx, OpSystemHubRegistration, c.endpoints.Registration, p.AuthToken(), body, nil)
}

func (c *Client) SystemHubLogin(ctx context.Context, p models.Payload) error {
	ctx, _, body, err := c.signed(ctx, p)
	if err != nil {
		return err
	}
	return c.post(ctx, OpSystemHubLogin, c.endpoints.DomainLogin, p.AuthToken(), body, nil)
}

// SharedRegistration creates or edits a domain or application credential.
// The user name and password only travel sealed under credentialSecret.
func (c *Client) SharedRegistration(ctx context.Context, p models.Payload) error {
	ctx, id, body, err := c.signed(ctx, p)
	if err != nil {
		return err
	}
	if err := requireVaultKey(id); err != nil {
		return err
	}
	plain, err := json.Marshal(models.UserCredential{
		UserName:     p.String("userName"),
		UserPassword: p.String("userPassword"),
	})
	if err != nil {
		return err
	}
	userCredential, err := c.cipher.SealString(string(plain), id.CredentialSecret)
	if err != nil {
		return err
	}
	delete(body, "userName")
	delete(body, "userPassword")
	body["userCredential"] = userCredential
	body["update"] = p["isNew"]
	if target, ok := p["targetId"]; ok && target != nil && p.String("targetId") != "" {
		body["targetId"] = target
	}
	path := c.endpoints.Registration
	if models.NormalizeType(p.Type()) == "updateApplications" {
		path = c.endpoints.EditApplication
	}
	return c.post(ctx, OpSharedRegistration, path, p.AuthToken(), body, nil)
}

// AccessResult summarizes a two-phase access exchange.
type AccessResult struct {
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// Access fetches the sealed credential list, opens each entry locally and
// resubmits the opened list. Entries that fail to open are dropped; the
// exchange still succeeds with the rest.
func (c *Client) Access(ctx context.Context, p models.Payload) (AccessResult, error) {
	var res AccessResult
	ctx, id, body, err := c.signed(ctx, p)
	if err != nil {
		return res, err
	}
	if err := requireVaultKey(id); err != nil {
		return res, err
	}
	fetchPath, accessPath := c.endpoints.ApplicationCredentials, c.endpoints.ApplicationList
	if models.NormalizeType(p.Type()) == "domainLogin" {
		fetchPath, accessPath = c.endpoints.DomainCredentials, c.endpoints.DomainLogin
	}

	body["update"] = false
	body["credentials"] = []models.OpenedCredential{}
	var sealed models.EncryptedCredentialList
	if err := c.post(ctx, OpAccessFetch, fetchPath, p.AuthToken(), body, &sealed); err != nil {
		return res, err
	}

	opened := make([]models.OpenedCredential, 0, len(sealed.Credentials))
	for _, entry := range sealed.Credentials {
		plain, ok := c.cipher.OpenString(entry.Credential, id.CredentialSecret)
		if !ok {
			res.Dropped++
			c.logger.Warn("dropping credential entry", "target_id", fmt.Sprint(entry.TargetID), "error", faults.ErrCryptoVerificationFailed)
			continue
		}
		opened = append(opened, models.OpenedCredential{
			Credential:  plain,
			TargetID:    entry.TargetID,
			Description: entry.Description,
			Application: entry.Application,
		})
	}
	c.metrics.AddDroppedCredentials(res.Dropped)

	// Every request carries its own privateId envelope.
	if body, err = c.signedBody(id, p); err != nil {
		return res, err
	}
	body["update"] = false
	body["credentials"] = opened
	if err := c.post(ctx, OpAccess, accessPath, p.AuthToken(), body, nil); err != nil {
		return res, err
	}
	res.Delivered = len(opened)
	return res, nil
}

func (c *Client) Delete(ctx context.Context, p models.Payload) error {
	ctx, _, body, err := c.signed(ctx, p)
	if err != nil {
		return err
	}
	path := c.endpoints.DeleteDomain
	if strings.HasPrefix(models.NormalizeType(p.Type()), "deleteApplication") {
		path = c.endpoints.DeleteApplication
	}
	return c.post(ctx, OpDelete, path, p.AuthToken(), body, nil)
}

// ImportClone writes the trust triple carried by a clone payload. It is
// local only and trusted as far as the QR transfer is.
func (c *Client) ImportClone(ctx context.Context, raw string) (clone.Trust, error) {
	trust, err := clone.Import(ctx, c.repo, raw)
	if err != nil {
		return trust, err
	}
	c.logger.Info("device identity imported from clone payload", "public_id", trust.PublicID)
	return trust, nil
}

// ExportClone releases the trust triple as a clone payload for the QR
// renderer. It is identity-releasing and goes through the gate.
func (c *Client) ExportClone(ctx context.Context) (string, error) {
	_, id, err := c.release(ctx, biometric.ClassCloneExport)
	if err != nil {
		return "", err
	}
	return clone.Serialize(id)
}
