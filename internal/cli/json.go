package cli

import (
	"encoding/json"
	"io"
)

// writeJSON renders v as two-space indented JSON followed by a newline,
// the shape every machine-readable command output uses.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
