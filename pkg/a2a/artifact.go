package a2a

import "github.com/google/uuid"

/*
Artifact is a named, ordered sequence of parts produced by an agent for a
task. It is uniquely identified by ArtifactID within its task; chunked
delivery appends parts to an existing artifact (see TaskArtifactUpdateEvent).
*/
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

/*
NewArtifact builds an artifact with a fresh id from the given parts.
*/
func NewArtifact(parts ...Part) Artifact {
	return Artifact{
		ArtifactID: uuid.NewString(),
		Parts:      parts,
	}
}

/*
TextContent concatenates the text of every text part in the artifact.
*/
func (a *Artifact) TextContent() string {
	var out string
	for _, part := range a.Parts {
		if part.Type == PartTypeText {
			out += part.Text
		}
	}
	return out
}
