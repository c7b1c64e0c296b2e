package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DecodeParams decodes an action's raw params mapping into a typed struct
// by round-tripping through YAML, so policy packages declare their params
// with the same yaml tags the configuration file uses. Unknown keys are
// rejected to catch typos at startup.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}
