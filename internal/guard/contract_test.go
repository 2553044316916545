package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductores/onboarding-engine/internal/flowctx"
)

func readyContract() ContractSnapshot {
	return ContractSnapshot{
		ClientID:               "c1",
		ContractID:             "k1",
		Market:                 "edomex",
		DocumentsComplete:      true,
		PendingOfflineRequests: 0,
		ProtectionRequired:     false,
		AVIDecision:            "GO",
		UpdatedAt:              At(testNow),
	}
}

func TestContractValid_PersistsClientContext(t *testing.T) {
	env, _ := newEnv(t)
	env.Flow.Save(KeyContract, readyContract())

	d := ContractValid{}.Evaluate(env, "/contratos/generacion")
	assert.True(t, d.Allowed)
	_, ok := env.Flow.Get(KeyClient)
	assert.False(t, ok, "Evaluate does not write")

	assert.True(t, NewEnforcer(env, nil, nil).Enforce(context.Background(), ContractValid{}, "/contratos/generacion"))

	client, ok := flowctx.Load[ClientContextSnapshot](env.Flow, KeyClient)
	require.True(t, ok)
	assert.Equal(t, "c1", client.ClientID)
	assert.Equal(t, "k1", client.ContractID)
	assert.Equal(t, "edomex", client.Market)
	assert.True(t, testNow.Equal(client.LastUpdated))
}

func TestContractValid_DocumentsIncomplete(t *testing.T) {
	env, _ := newEnv(t)
	c := readyContract()
	c.DocumentsComplete = false
	env.Flow.Save(KeyContract, c)

	d := ContractValid{}.Evaluate(env, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, "/documentos", d.Redirect)

	assert.False(t, NewEnforcer(env, nil, nil).Enforce(context.Background(), ContractValid{}, ""))
	ContractValid{}.Commit(env)
	_, ok := env.Flow.Get(KeyClient)
	assert.False(t, ok)
}

func TestContractReady_Checks(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*ContractSnapshot)
		wantRedirect string
		wantReason   Reason
	}{
		{"missing client", func(c *ContractSnapshot) { c.ClientID = "" }, "/clientes", ReasonMissingClient},
		{"missing contract", func(c *ContractSnapshot) { c.ContractID = "" }, "/contratos/generacion", ReasonMissingContract},
		{"documents", func(c *ContractSnapshot) { c.DocumentsComplete = false }, "/documentos", ReasonDocumentsPending},
		{"offline queue", func(c *ContractSnapshot) { c.PendingOfflineRequests = 2 }, "/documentos", ReasonOfflinePending},
		{"voice", func(c *ContractSnapshot) {
			required := true
			c.RequiresVoiceVerification = &required
		}, "/documentos", ReasonVoicePending},
		{"protection", func(c *ContractSnapshot) { c.ProtectionRequired = true }, "/proteccion", ReasonProtectionPending},
		{"avi no go", func(c *ContractSnapshot) { c.AVIDecision = "no_go" }, "/clientes", ReasonAVIRejected},
		{"stale", func(c *ContractSnapshot) { c.UpdatedAt = At(testNow.Add(-25 * time.Hour)) }, "/documentos", ReasonStaleContext},
		{"no timestamp", func(c *ContractSnapshot) { c.UpdatedAt = Timestamp{} }, "/documentos", ReasonStaleContext},
		{"first failure wins", func(c *ContractSnapshot) {
			c.ClientID = ""
			c.DocumentsComplete = false
		}, "/clientes", ReasonMissingClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newEnv(t)
			c := readyContract()
			tt.mutate(&c)
			env.Flow.Save(KeyContract, c)

			d := ContractReady{}.Evaluate(env, "")
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.wantRedirect, d.Redirect)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.NotEmpty(t, d.Message)
		})
	}
}

func TestContractReady_Passes(t *testing.T) {
	env, _ := newEnv(t)
	c := readyContract()
	required := true
	c.RequiresVoiceVerification = &required
	c.VoiceVerified = true
	c.ProtectionRequired = true
	c.ProtectionApplied = true
	c.UpdatedAt = At(testNow.Add(-23 * time.Hour))
	env.Flow.Save(KeyContract, c)

	assert.True(t, ContractReady{}.Evaluate(env, "").Allowed)

	env.StaleAfter = time.Hour
	assert.Equal(t, ReasonStaleContext, ContractReady{}.Evaluate(env, "").Reason)
}

func TestContractReady_MissingContext(t *testing.T) {
	env, _ := newEnv(t)
	d := ContractReady{}.Evaluate(env, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingContext, d.Reason)
	assert.Equal(t, "/documentos", d.Redirect)
}

func TestContractReady_LooseSnapshot(t *testing.T) {
	env, _ := newEnv(t)
	env.Flow.Save(KeyContract, map[string]any{
		"clientId":               "c1",
		"contractId":             "k1",
		"documentsComplete":      true,
		"pendingOfflineRequests": 0,
		"aviDecision":            "GO",
		"updatedAt":              testNow.Add(-time.Hour).UnixMilli(),
	})
	assert.True(t, ContractReady{}.Evaluate(env, "").Allowed)
}

func TestDelivery(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(env Env)
		allowed      bool
		wantRedirect string
	}{
		{"contract complete", func(env Env) { env.Flow.Save(KeyContract, readyContract()) }, true, ""},
		{"contract without id", func(env Env) {
			c := readyContract()
			c.ContractID = ""
			env.Flow.Save(KeyContract, c)
		}, false, "/contratos/generacion"},
		{"contract documents pending", func(env Env) {
			c := readyContract()
			c.DocumentsComplete = false
			env.Flow.Save(KeyContract, c)
		}, false, "/documentos"},
		{"contract offline pending", func(env Env) {
			c := readyContract()
			c.PendingOfflineRequests = 1
			env.Flow.Save(KeyContract, c)
		}, false, "/documentos"},
		{"delivery events", func(env Env) {
			env.Flow.Save(KeyDelivery, map[string]any{"events": []any{map[string]any{"type": "dispatched"}}})
		}, true, ""},
		{"no delivery events", func(env Env) {
			env.Flow.Save(KeyDelivery, map[string]any{"events": []any{}})
		}, false, "/contratos/generacion"},
		{"nothing", func(Env) {}, false, "/contratos/generacion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newEnv(t)
			tt.setup(env)
			d := Delivery{}.Evaluate(env, "")
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.wantRedirect, d.Redirect)
		})
	}
}
