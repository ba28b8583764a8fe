// Package main is a command-line conversation replayer. It loads a flow
// definition, walks it with a scripted list of answers and prints the
// resulting transcript — useful for checking a flow's routing without the
// widget or any backing services.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"chatflow-works/engine/internal/engine"
	"chatflow-works/engine/internal/models"
)

func main() {
	flowFile := flag.String("flow", "", "Path to the flow JSON file")
	scriptFile := flag.String("script", "", "Path to the scripted answers JSON file (optional)")
	flag.Parse()

	var flowJSON []byte
	var err error
	if *flowFile == "" {
		log.Println("No flow file specified, using embedded example")
		flowJSON = []byte(exampleFlow)
	} else {
		flowJSON, err = os.ReadFile(*flowFile)
		if err != nil {
			log.Fatalf("Failed to read flow file: %v", err)
		}
	}

	flow, err := models.ParseFlow(flowJSON)
	if err != nil {
		log.Fatalf("Failed to parse flow: %v", err)
	}

	// A script is a JSON array of answers applied in order to each node that
	// waits for input. Strings answer inputs, numbers pick custom options,
	// objects fill forms.
	var script []interface{}
	if *scriptFile != "" {
		scriptJSON, err := os.ReadFile(*scriptFile)
		if err != nil {
			log.Fatalf("Failed to read script file: %v", err)
		}
		if err := json.Unmarshal(scriptJSON, &script); err != nil {
			log.Fatalf("Failed to parse script JSON: %v", err)
		}
	} else {
		script = []interface{}{float64(0), "Ada", map[string]interface{}{
			"name":  "Ada Lovelace",
			"email": "ada@example.com",
		}}
	}

	eng, err := engine.New(flow)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	sess, effects := eng.StartSession(engine.StartOptions{UserID: flow.UserID})
	printEffects(effects)

	for _, answer := range script {
		if sess.Completed {
			break
		}
		node, ok := flow.FindNode(sess.CurrentNodeID)
		if !ok || !node.RequiresInput() {
			log.Printf("Node %s does not take input, stopping script", sess.CurrentNodeID)
			break
		}

		in := engine.Interaction{NodeID: node.ID}
		switch v := answer.(type) {
		case float64:
			// A number picks the nth option of a custom node.
			i := int(v)
			in.OptionIndex = &i
			if i >= 0 && i < len(node.Data.Options) {
				in.Input = node.Data.Options[i]
			}
		default:
			in.Input = v
		}

		effects, err := eng.HandleInteraction(sess, in)
		printEffects(effects)
		if err != nil {
			log.Fatalf("Interaction on node %s failed: %v", node.ID, err)
		}
	}

	fmt.Println("\n========== TRANSCRIPT ==========")
	for _, entry := range sess.Transcript {
		label := entry.Node.Data.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Printf("[%s] %s: %s\n", entry.Node.ID, entry.Node.Type, label)
		if entry.Answered() {
			answer, _ := json.Marshal(entry.UserInput)
			fmt.Printf("    -> %s\n", answer)
		}
	}
	fmt.Printf("================================\ncompleted=%v notified=%v\n",
		sess.Completed, sess.NotificationSent)
}

func printEffects(effects []engine.Effect) {
	for _, ef := range effects {
		switch ev := ef.(type) {
		case engine.RecordFormSubmission:
			log.Printf("effect: record form %s submission from %s", ev.FormID, ev.UserEmail)
		case engine.RecordTranscript:
			log.Printf("effect: record transcript")
		case engine.SendFormEmail:
			log.Printf("effect: send form confirmation to %s", ev.To)
		case engine.SendSummaryEmail:
			log.Printf("effect: send conversation summary to owner")
		}
	}
}

// exampleFlow is a small embedded flow for trying out the replayer.
const exampleFlow = `{
  "id": "example-flow",
  "userId": "local",
  "name": "Contact Example",
  "nodes": [
    {"id": "welcome", "type": "text", "data": {"label": "Welcome! How can we help?"}},
    {"id": "topic", "type": "custom", "data": {"label": "Pick a topic", "options": ["Sales", "Support"]}},
    {"id": "name", "type": "singleInput", "data": {"label": "What is your name?"}},
    {"id": "contact", "type": "form", "data": {
      "label": "Leave your details",
      "fields": [
        {"key": "name", "label": "Name", "type": "text", "required": true},
        {"key": "email", "label": "Email", "type": "email", "required": true}
      ],
      "isEndNode": true
    }}
  ],
  "edges": [
    {"id": "e1", "source": "welcome", "target": "topic"},
    {"id": "e2", "source": "topic", "target": "name", "sourceHandle": "option-0"},
    {"id": "e3", "source": "topic", "target": "name", "sourceHandle": "option-1"},
    {"id": "e4", "source": "name", "target": "contact"}
  ]
}`
