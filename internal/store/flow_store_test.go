package store

import (
	"encoding/json"
	"testing"
	"time"

	"chatflow-works/engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// FlowRecord.ParseFlow
// ---------------------------------------------------------------------------

func TestFlowRecord_ParseFlow_ValidJSON(t *testing.T) {
	nodes := []models.Node{
		{ID: "start", Type: models.NodeText, Data: models.NodeData{Label: "Hello"}},
		{ID: "ask", Type: models.NodeSingleInput, Data: models.NodeData{Label: "Name?"}},
	}
	edges := []models.Edge{{ID: "e1", Source: "start", Target: "ask"}}

	nodeBytes, err := json.Marshal(nodes)
	require.NoError(t, err)
	edgeBytes, err := json.Marshal(edges)
	require.NoError(t, err)

	rec := &FlowRecord{
		ID:     "flow-1",
		UserID: "user-1",
		Name:   "Greeter",
		Nodes:  nodeBytes,
		Edges:  edgeBytes,
	}

	flow, err := rec.ParseFlow()
	require.NoError(t, err)
	assert.Equal(t, "flow-1", flow.ID)
	assert.Equal(t, "Greeter", flow.Name)
	require.Len(t, flow.Nodes, 2)
	assert.Equal(t, "start", flow.StartNode().ID)
}

func TestFlowRecord_ParseFlow_MalformedJSON(t *testing.T) {
	rec := &FlowRecord{ID: "bad-flow", Nodes: json.RawMessage(`{not valid json`)}
	_, err := rec.ParseFlow()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse flow")
}

func TestFlowRecord_ParseFlow_EmptyFlowRejected(t *testing.T) {
	rec := &FlowRecord{
		ID:    "empty-flow",
		Nodes: json.RawMessage(`[]`),
		Edges: json.RawMessage(`[]`),
	}
	_, err := rec.ParseFlow()
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// FlowStore — construction and serialisation (no DB required).
// Full integration tests require a live Postgres instance and are skipped in CI.
// ---------------------------------------------------------------------------

func TestFlowStore_New(t *testing.T) {
	store := NewFlowStore(nil)
	assert.NotNil(t, store)
}

// TestFlowRecord_JSON verifies that FlowRecord serialises with camelCase JSON
// keys (required by the builder frontend).
func TestFlowRecord_JSON(t *testing.T) {
	rec := &FlowRecord{
		ID:            "f1",
		UserID:        "u1",
		Name:          "F1",
		WebsiteDomain: "example.com",
		Nodes:         json.RawMessage(`[]`),
		Edges:         json.RawMessage(`[]`),
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "userId")
	assert.Contains(t, m, "websiteDomain")
	assert.Contains(t, m, "createdAt")
	assert.NotContains(t, m, "user_id")
}

func TestAccess_OwnerJSON(t *testing.T) {
	b, err := json.Marshal(Access{HasAccess: true, IsOwner: true, Role: "owner"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasAccess":true,"isOwner":true,"role":"owner"}`, string(b))
}

func TestAccess_NoRoleOmitted(t *testing.T) {
	b, err := json.Marshal(Access{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasAccess":false,"isOwner":false}`, string(b))
}
