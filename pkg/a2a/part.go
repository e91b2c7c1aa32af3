package a2a

import "fmt"

// PartType is the discriminator for a Part union.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
	PartTypeData PartType = "data"
)

/*
Part is a discriminated union over text, file and data parts. We keep it
simple by embedding all optional fields in a single struct, which avoids
heavy custom JSON marshalling logic while remaining spec compliant.

Exactly one of Text, File, or Data should be populated according to the
Type field. This is not enforced at the struct level; Validate checks it.
*/
type Part struct {
	Type PartType `json:"type"`

	Text string         `json:"text,omitempty"`
	File *FilePart      `json:"file,omitempty"`
	Data map[string]any `json:"data,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

/*
TextPart builds a text Part.
*/
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

/*
DataPart builds a data Part.
*/
func DataPart(data map[string]any) Part {
	return Part{Type: PartTypeData, Data: data}
}

/*
Validate checks that the Part follows the discriminated union pattern.
*/
func (p *Part) Validate() error {
	populated := 0

	if p.Text != "" {
		populated++
	}

	if p.File != nil {
		populated++
	}

	if len(p.Data) > 0 {
		populated++
	}

	switch p.Type {
	case PartTypeText:
		if p.Text == "" {
			return fmt.Errorf("text part has empty text field")
		}
	case PartTypeFile:
		if p.File == nil {
			return fmt.Errorf("file part has nil file field")
		}
	case PartTypeData:
		if len(p.Data) == 0 {
			return fmt.Errorf("data part has empty data field")
		}
	default:
		return fmt.Errorf("unknown part type: %s", p.Type)
	}

	if populated != 1 {
		return fmt.Errorf("part should have exactly one of text, file, or data populated, found %d", populated)
	}

	if p.Type == PartTypeFile {
		return p.File.Validate()
	}

	return nil
}

/*
FilePart references file content either inline (base64 bytes) or by URI.
The producer should set exactly one of the two.
*/
type FilePart struct {
	Name     *string `json:"name,omitempty"`
	MimeType *string `json:"mimeType,omitempty"`

	Bytes string `json:"bytes,omitempty"` // base64 encoded
	URI   string `json:"uri,omitempty"`
}

/*
Validate checks the bytes XOR uri constraint.
*/
func (fp *FilePart) Validate() error {
	if fp.Bytes != "" && fp.URI != "" {
		return fmt.Errorf("file part cannot have both bytes and uri fields set")
	}

	if fp.Bytes == "" && fp.URI == "" {
		return fmt.Errorf("file part must have either bytes or uri field set")
	}

	return nil
}
