package clone

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/identity"
	"zerointrusion/vault-client/internal/securestore"
)

func fullIdentity() identity.DeviceIdentity {
	return identity.DeviceIdentity{
		PublicID:         "P1",
		PrivateID:        "PR1",
		Secret:           "S1",
		CredentialSecret: "CS1",
		Email:            "user@example.com",
		Phone:            "+3612345",
		FCMToken:         "fcm",
	}
}

func TestSerializeCarriesOnlyTrust(t *testing.T) {
	raw, err := Serialize(fullIdentity())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))
	assert.Equal(t, map[string]any{
		"publicId":  "P1",
		"privateId": "PR1",
		"secret":    "S1",
		"type":      "clone",
	}, fields)
}

func TestRoundtrip(t *testing.T) {
	id := fullIdentity()
	raw, err := Serialize(id)
	require.NoError(t, err)

	trust, err := Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, Trust{PublicID: id.PublicID, PrivateID: id.PrivateID, Secret: id.Secret}, trust)
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"not json":       "{publicId:",
		"missing secret": `{"publicId":"P1","privateId":"PR1","type":"clone"}`,
		"wrong type":     `{"publicId":"P1","privateId":"PR1","secret":"S1","type":"domain-login"}`,
		"array":          `["P1","PR1","S1"]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Deserialize(raw)
			assert.ErrorIs(t, err, faults.ErrMalformedPayload)
		})
	}
}

func TestSerializeRequiresTrust(t *testing.T) {
	_, err := Serialize(identity.DeviceIdentity{PublicID: "P1"})
	assert.ErrorIs(t, err, faults.ErrIdentityIncomplete)
}

func TestImportWritesTrustOnly(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewRepository(securestore.NewMemory())
	require.NoError(t, repo.SaveTrust(ctx, "OLD", "OLDPR", "OLDS"))

	raw, err := Serialize(fullIdentity())
	require.NoError(t, err)
	_, err = Import(ctx, repo, raw)
	require.NoError(t, err)

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P1", got.PublicID)
	assert.Equal(t, "PR1", got.PrivateID)
	assert.Equal(t, "S1", got.Secret)
	assert.Empty(t, got.CredentialSecret)
	assert.Empty(t, got.Email)
	assert.Empty(t, got.Phone)
}
