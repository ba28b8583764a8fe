package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearFlow() *Flow {
	return &Flow{
		ID:   "f1",
		Name: "Contact Form",
		Nodes: []Node{
			{ID: "a", Type: NodeText, Data: NodeData{Label: "Welcome"}},
			{ID: "b", Type: NodeSingleInput, Data: NodeData{Label: "Your name?"}},
			{ID: "c", Type: NodeForm, Data: NodeData{Label: "Details", Fields: []FormField{
				{Key: "email", Label: "Email", Type: "email", Required: true},
			}}},
		},
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	}
}

func TestValidate_EmptyNodes(t *testing.T) {
	f := &Flow{}
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	f := &Flow{Nodes: []Node{{ID: "a", Type: NodeText}, {ID: "a", Type: NodeText}}}
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestFindNode(t *testing.T) {
	f := linearFlow()

	n, ok := f.FindNode("b")
	require.True(t, ok)
	assert.Equal(t, NodeSingleInput, n.Type)

	_, ok = f.FindNode("missing")
	assert.False(t, ok)
}

func TestStartNode_NoIncomingEdge(t *testing.T) {
	f := linearFlow()
	assert.Equal(t, "a", f.StartNode().ID)
}

func TestStartNode_FullyCyclicFallsBackToFirstDeclared(t *testing.T) {
	f := &Flow{
		Nodes: []Node{
			{ID: "x", Type: NodeText},
			{ID: "y", Type: NodeText},
		},
		Edges: []Edge{
			{Source: "x", Target: "y"},
			{Source: "y", Target: "x"},
		},
	}
	assert.Equal(t, "x", f.StartNode().ID)
}

func TestOutgoingEdges_DeclarationOrder(t *testing.T) {
	f := &Flow{
		Nodes: []Node{{ID: "a", Type: NodeCustom, Data: NodeData{Options: []string{"one", "two"}}}},
		Edges: []Edge{
			{Source: "a", Target: "t2", SourceHandle: "option-1"},
			{Source: "a", Target: "t1", SourceHandle: "option-0"},
		},
	}

	edges := f.OutgoingEdges("a")
	require.Len(t, edges, 2)
	assert.Equal(t, "t2", edges[0].Target)

	// Handle lookup ignores declaration order
	e := f.EdgeFrom("a", "option-0")
	require.NotNil(t, e)
	assert.Equal(t, "t1", e.Target)
}

func TestRequiresInput(t *testing.T) {
	cases := []struct {
		node Node
		want bool
	}{
		{Node{Type: NodeText}, false},
		{Node{Type: NodeCondition}, false},
		{Node{Type: NodeSingleInput}, true},
		{Node{Type: NodeAIInput}, true},
		{Node{Type: NodeForm}, true},
		{Node{Type: NodeCustom}, false},
		{Node{Type: NodeCustom, Data: NodeData{Options: []string{"yes"}}}, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.node.RequiresInput(), "type %s", c.node.Type)
	}
}

func TestParseFlow(t *testing.T) {
	flow, err := ParseFlow([]byte(`{"nodes":[{"id":"a","type":"text","data":{"label":"hi"}}],"edges":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "a", flow.Nodes[0].ID)

	_, err = ParseFlow([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseFlow([]byte(`{"nodes":[],"edges":[]}`))
	assert.Error(t, err)
}

func TestFormFieldName(t *testing.T) {
	assert.Equal(t, "email", FormField{Key: "email", Label: "Your Email"}.Name())
	assert.Equal(t, "Your Email", FormField{Label: "Your Email"}.Name())
}
