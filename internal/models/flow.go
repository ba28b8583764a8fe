// Package models defines the flow graph (nodes, edges) and the conversation
// transcript types shared by the traversal engine, stores and notifier.
package models

import (
	"encoding/json"
	"fmt"
)

// NodeType enumerates the supported conversation step kinds.
type NodeType string

const (
	NodeText        NodeType = "text"
	NodeCustom      NodeType = "custom"
	NodeCondition   NodeType = "condition"
	NodeForm        NodeType = "form"
	NodeSingleInput NodeType = "singleInput"
	NodeAIInput     NodeType = "aiinput"
)

// FormField describes one input of a form node.
type FormField struct {
	Key      string `json:"key,omitempty"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Name returns the field's submission key: Key when set, Label otherwise.
func (f FormField) Name() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Label
}

// NodeData is the type-specific payload of a node. Only the fields relevant
// to the node's type are populated by the editor.
type NodeData struct {
	Label                 string      `json:"label,omitempty"`
	Placeholder           string      `json:"placeholder,omitempty"`
	Options               []string    `json:"options,omitempty"`
	Fields                []FormField `json:"fields,omitempty"`
	IsEndNode             bool        `json:"isEndNode,omitempty"`
	SendEmailOnCompletion bool        `json:"sendEmailOnCompletion,omitempty"`
}

// Node is a single conversation step. Nodes are immutable during traversal.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

// RequiresInput reports whether the node waits for a user response before
// the flow can move on.
func (n *Node) RequiresInput() bool {
	switch n.Type {
	case NodeSingleInput, NodeAIInput, NodeForm:
		return true
	case NodeCustom:
		return len(n.Data.Options) > 0
	}
	return false
}

// AutoAdvances reports whether the traversal engine steps through the node
// without user input.
func (n *Node) AutoAdvances() bool {
	return n.Type == NodeText || n.Type == NodeCondition
}

// Edge is a directed connection between two nodes. SourceHandle disambiguates
// between multiple edges leaving the same node ("yes"/"no" on condition
// nodes, "option-<i>" on custom nodes).
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Flow is the complete conversation graph plus its metadata. The graph is
// loaded once per session and is read-only afterwards, so a single Flow can
// safely be shared between sessions.
type Flow struct {
	ID            string `json:"id,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Name          string `json:"name,omitempty"`
	WebsiteDomain string `json:"websiteDomain,omitempty"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
}

// Validate checks the structural invariants the traversal engine relies on:
// at least one node and unique node ids.
func (f *Flow) Validate() error {
	if len(f.Nodes) == 0 {
		return fmt.Errorf("flow: no nodes found")
	}
	seen := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return fmt.Errorf("flow: node with empty id")
		}
		if seen[n.ID] {
			return fmt.Errorf("flow: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range f.Edges {
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("flow: edge with empty source or target")
		}
	}
	return nil
}

// FindNode returns the node with the given id.
func (f *Flow) FindNode(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns every edge leaving nodeID in declaration order.
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// FirstEdgeFrom returns the first declared edge leaving nodeID, regardless
// of its handle. Text nodes follow this edge.
func (f *Flow) FirstEdgeFrom(nodeID string) *Edge {
	for i := range f.Edges {
		if f.Edges[i].Source == nodeID {
			return &f.Edges[i]
		}
	}
	return nil
}

// EdgeFrom returns the first declared edge leaving nodeID whose handle
// matches exactly. At most one edge per (source, handle) pair is consulted
// per traversal step.
func (f *Flow) EdgeFrom(nodeID, handle string) *Edge {
	for i := range f.Edges {
		if f.Edges[i].Source == nodeID && f.Edges[i].SourceHandle == handle {
			return &f.Edges[i]
		}
	}
	return nil
}

// StartNode returns the entry point of the flow: the first declared node with
// no incoming edge. When every node has an incoming edge (a fully cyclic
// graph) the first declared node is used as a fallback.
func (f *Flow) StartNode() *Node {
	incoming := make(map[string]bool, len(f.Edges))
	for _, e := range f.Edges {
		incoming[e.Target] = true
	}
	for i := range f.Nodes {
		if !incoming[f.Nodes[i].ID] {
			return &f.Nodes[i]
		}
	}
	return &f.Nodes[0]
}

// TranscriptEntry is one step of a conversation: the node that was shown and
// the input the user gave for it. UserInput stays nil while the node is
// pending a response. The transcript doubles as render source and traversal
// state, and is rebuilt from scratch on reset.
type TranscriptEntry struct {
	Node      Node        `json:"node"`
	UserInput interface{} `json:"userInput"`
}

// Answered reports whether the entry has a recorded user input.
func (e *TranscriptEntry) Answered() bool {
	return e.UserInput != nil
}

// ParseFlow decodes a flow from its stored JSON representation and validates it.
func ParseFlow(data []byte) (*Flow, error) {
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("flow: parse JSON: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
