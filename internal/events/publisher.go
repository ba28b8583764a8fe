// Package events publishes interaction and completion events to NATS for
// downstream analytics. Publishing is fire-and-forget: a missing or failing
// broker never blocks a conversation.
package events

import (
	"encoding/json"
	"log"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	SubjectInteractions = "chatflow.interactions"
	SubjectCompletions  = "chatflow.completions"
)

// Publisher sends flow events to NATS. The zero URL disables publishing.
type Publisher struct {
	conn    *nats.Conn
	enabled bool
}

// New connects to NATS at natsURL. A connection failure disables the
// publisher with a warning instead of failing startup.
func New(natsURL string) *Publisher {
	p := &Publisher{enabled: natsURL != ""}
	if !p.enabled {
		return p
	}
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Printf("Warning: Failed to connect to NATS at %s: %v. Event publishing disabled.", natsURL, err)
		p.enabled = false
		return p
	}
	p.conn = nc
	log.Printf("Connected to NATS at %s for event publishing", natsURL)
	return p
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// InteractionReceived publishes one visitor answer.
func (p *Publisher) InteractionReceived(sessionID, flowID, nodeID, nodeType string) {
	p.publish(SubjectInteractions, map[string]interface{}{
		"session_id": sessionID,
		"flow_id":    flowID,
		"node_id":    nodeID,
		"node_type":  nodeType,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// FlowCompleted publishes the end of one conversation.
func (p *Publisher) FlowCompleted(sessionID, flowID string, answered int, notified bool) {
	p.publish(SubjectCompletions, map[string]interface{}{
		"session_id": sessionID,
		"flow_id":    flowID,
		"answered":   answered,
		"notified":   notified,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(subject string, event map[string]interface{}) {
	if !p.enabled || p.conn == nil {
		return
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, msgBytes); err != nil {
		log.Printf("Failed to publish %s event: %v", subject, err)
	}
}
