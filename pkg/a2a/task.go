package a2a

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

/*
TaskState enumerates the mutually exclusive states a task may be in.
Unrecognized values fold to "unknown", which counts as final.
*/
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateInputReq  TaskState = "input-required"
	TaskStateAuthReq   TaskState = "auth-required"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateRejected  TaskState = "rejected"
	TaskStateUnknown   TaskState = "unknown"
)

/*
IsFinal reports whether no further transitions can occur from the state.
input-required and auth-required are interruptions, not terminals: the task
resumes on the next message.
*/
func (s TaskState) IsFinal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected, TaskStateUnknown:
		return true
	}
	return false
}

/*
IsCancelable reports whether a cancel request is admissible from the state.
*/
func (s TaskState) IsCancelable() bool {
	return !s.IsFinal()
}

/*
Task is the canonical record of a single agent task. ID is immutable after
creation; ContextID groups related tasks; History is append-only and never
contains the current status message.
*/
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

/*
NewTask builds a task in the submitted state with fresh ids where absent.
*/
func NewTask(id, contextID string) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}

	now := time.Now().UTC()

	return &Task{
		ID:        id,
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: &now,
		},
	}
}

/*
Artifact returns the artifact with the given id, or nil.
*/
func (t *Task) Artifact(artifactID string) *Artifact {
	for i := range t.Artifacts {
		if t.Artifacts[i].ArtifactID == artifactID {
			return &t.Artifacts[i]
		}
	}
	return nil
}

/*
TrimHistory caps History to the most recent n messages. Negative n leaves the
task untouched; zero clears the history.
*/
func (t *Task) TrimHistory(n int) {
	if n < 0 {
		return
	}
	if n == 0 {
		t.History = nil
		return
	}
	if n < len(t.History) {
		t.History = t.History[len(t.History)-n:]
	}
}

/*
Clone returns a deep copy of the task. The pipeline hands tasks to multiple
subscribers, so shared mutable state must never leak out of the store.
*/
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	out := *t

	if t.Status.Message != nil {
		msg := *t.Status.Message
		out.Status.Message = &msg
	}
	if t.Status.Timestamp != nil {
		ts := *t.Status.Timestamp
		out.Status.Timestamp = &ts
	}

	out.History = append([]Message(nil), t.History...)

	out.Artifacts = make([]Artifact, len(t.Artifacts))
	for i, artifact := range t.Artifacts {
		out.Artifacts[i] = artifact
		out.Artifacts[i].Parts = append([]Part(nil), artifact.Parts...)
	}

	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}

	return &out
}

func (t *Task) String() string {
	var sb strings.Builder

	// Styles
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(t.ID) + "\n")
	if t.ContextID != "" {
		sb.WriteString(bullet + labelStyle.Render("Context ID: ") + valueStyle.Render(t.ContextID) + "\n")
	}

	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(t.Status.State)) + "\n")
	if t.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(t.Status.Message.TextContent()) + "\n")
	}
	if t.Status.Timestamp != nil {
		sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(t.Status.Timestamp.Format(time.RFC3339)) + "\n")
	}

	if len(t.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")
		for i, message := range t.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(message.Role) + "\n")
			for _, part := range message.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(t.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range t.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("ID: ") + valueStyle.Render(artifact.ArtifactID) + "\n")
			if artifact.Name != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(*artifact.Name) + "\n")
			}
			for j, part := range artifact.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render(fmt.Sprintf("Part %d: ", j+1)) + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(t.Metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(t.Metadata))
		for k := range t.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", t.Metadata[k])) + "\n")
		}
	}

	return sb.String()
}
