package models

import (
	"encoding/json"
	"io"
)

// Encoder writing 2-space indented JSON. Raw messages are re-indented
// without reordering their keys.
func JSONEncoder(w io.Writer) *json.Encoder {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	e.SetEscapeHTML(false)
	return e
}
