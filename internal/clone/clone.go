// Package clone moves device trust to a second device through a QR payload.
// The payload carries publicId, privateId and secret only: the vault key and
// the recovery contacts are established again on the new device.
package clone

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/identity"
)

const PayloadType = "clone"

type payload struct {
	PublicID  string `json:"publicId"`
	PrivateID string `json:"privateId"`
	Secret    string `json:"secret"`
	Type      string `json:"type"`
}

// Trust is the part of a DeviceIdentity a clone payload transfers.
type Trust struct {
	PublicID  string
	PrivateID string
	Secret    string
}

// Serialize renders the transferable payload handed to the QR renderer.
func Serialize(id identity.DeviceIdentity) (string, error) {
	if !id.HasTrust() {
		return "", fmt.Errorf("%w: clone needs publicId, privateId and secret", faults.ErrIdentityIncomplete)
	}
	raw, err := json.Marshal(payload{
		PublicID:  id.PublicID,
		PrivateID: id.PrivateID,
		Secret:    id.Secret,
		Type:      PayloadType,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Deserialize parses a clone payload; every failure wraps faults.ErrMalformedPayload.
func Deserialize(raw string) (Trust, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Trust{}, faults.Malformed("clone payload is empty", nil)
	}
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Trust{}, faults.Malformed("clone payload is not json", err)
	}
	if p.Type != "" && p.Type != PayloadType {
		return Trust{}, faults.Malformed(fmt.Sprintf("unexpected payload type %q", p.Type), nil)
	}
	var missing []string
	if p.PublicID == "" {
		missing = append(missing, "publicId")
	}
	if p.PrivateID == "" {
		missing = append(missing, "privateId")
	}
	if p.Secret == "" {
		missing = append(missing, "secret")
	}
	if len(missing) > 0 {
		return Trust{}, faults.Malformed("clone payload missing "+strings.Join(missing, ", "), nil)
	}
	return Trust{PublicID: p.PublicID, PrivateID: p.PrivateID, Secret: p.Secret}, nil
}

// Import parses raw and writes the trust triple unconditionally. Proximity of
// the QR exchange is the security boundary; the payload is not signed.
func Import(ctx context.Context, repo *identity.Repository, raw string) (Trust, error) {
	trust, err := Deserialize(raw)
	if err != nil {
		return Trust{}, err
	}
	if err := repo.SaveTrust(ctx, trust.PublicID, trust.PrivateID, trust.Secret); err != nil {
		return Trust{}, fmt.Errorf("store cloned identity: %w", err)
	}
	return trust, nil
}
