package a2a

import "github.com/google/uuid"

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

/*
Message represents all non-artifact communication between client and agent.
A message may reference the task it belongs to, the context grouping related
tasks, and other tasks it refers to.
*/
type Message struct {
	MessageID        string         `json:"messageId"`
	Role             string         `json:"role"` // "user" or "agent"
	Parts            []Part         `json:"parts"`
	TaskID           string         `json:"taskId,omitempty"`
	ContextID        string         `json:"contextId,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

/*
NewUserMessage builds a user-role message with a fresh id from the given parts.
*/
func NewUserMessage(parts ...Part) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Role:      RoleUser,
		Parts:     parts,
	}
}

/*
NewAgentMessage builds an agent-role message with a fresh id, bound to a task.
*/
func NewAgentMessage(taskID, contextID string, parts ...Part) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Role:      RoleAgent,
		TaskID:    taskID,
		ContextID: contextID,
		Parts:     parts,
	}
}

/*
AgentTextMessage is a convenience for the common single text part case.
*/
func AgentTextMessage(text string) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Role:      RoleAgent,
		Parts:     []Part{TextPart(text)},
	}
}

/*
TextContent concatenates the text of every text part in the message.
*/
func (m *Message) TextContent() string {
	var out string
	for _, part := range m.Parts {
		if part.Type == PartTypeText {
			out += part.Text
		}
	}
	return out
}

/*
Validate checks every part of the message.
*/
func (m *Message) Validate() error {
	for i := range m.Parts {
		if err := m.Parts[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
