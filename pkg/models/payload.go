package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	FieldType      = "type"
	FieldAuthToken = "xExtensionAuthOne"
)

var (
	ErrPayloadEmpty   = errors.New("payload is empty")
	ErrPayloadNotJSON = errors.New("payload is not a json object")
	ErrPayloadNoType  = errors.New("payload has no type")
)

// Payload is a decoded QR or notification payload: a flat JSON object with a
// mandatory type discriminator. Unknown fields are kept and relayed to the hub.
type Payload map[string]any

func ParsePayload(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrPayloadEmpty
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil || p == nil {
		return nil, ErrPayloadNotJSON
	}
	if dec.More() {
		return nil, ErrPayloadNotJSON
	}
	if strings.TrimSpace(p.Type()) == "" {
		return nil, ErrPayloadNoType
	}
	return p, nil
}

func (p Payload) Type() string {
	return p.String(FieldType)
}

// AuthToken is the hub-issued bearer token carried by the payload.
func (p Payload) AuthToken() string {
	return p.String(FieldAuthToken)
}

// String returns scalar values as text and "" for absent or structured ones.
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}

// Without copies the payload minus keys.
func (p Payload) Without(keys ...string) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

const ActionShowAllowClose = "show_allow_close"

// PushPayload is what the notification channel hands over.
type PushPayload struct {
	Action string `json:"action"`
	QRData string `json:"qrData"`
}

// EncryptedCredential is one entry of the hub's credential list, still sealed
// under the device's credentialSecret.
type EncryptedCredential struct {
	Credential  string  `json:"credential"`
	TargetID    any     `json:"targetId"`
	Description string  `json:"description"`
	Application *string `json:"application,omitempty"`
}

// OpenedCredential is an entry after local decryption, resubmitted to the hub.
type OpenedCredential struct {
	Credential  string  `json:"credential"`
	TargetID    any     `json:"targetId"`
	Description string  `json:"description"`
	Application *string `json:"application,omitempty"`
}

type EncryptedCredentialList struct {
	Credentials []EncryptedCredential `json:"credentials"`
}

// UserCredential is the plaintext sealed as userCredential on registration.
type UserCredential struct {
	UserName     string `json:"userName"`
	UserPassword string `json:"userPassword"`
}

// NormalizeType folds hyphen, underscore and space separated type tags into
// lower camel case: "domain-login" and "DOMAIN_LOGIN" both become "domainLogin".
func NormalizeType(raw string) string {
	parts := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return lowerFirst(parts[0])
	}
	var b strings.Builder
	for i, part := range parts {
		part = strings.ToLower(part)
		if i > 0 {
			part = strings.ToUpper(part[:1]) + part[1:]
		}
		b.WriteString(part)
	}
	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if strings.ToUpper(s) == s {
		return strings.ToLower(s)
	}
	return strings.ToLower(s[:1]) + s[1:]
}
