package ddconfig

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlexBool accepts the boolean spellings the config loader must tolerate:
// true/false, yes/no, on/off, 1/0 — in addition to YAML's native booleans,
// since operators hand-edit this file and copy snippets from varied
// sources.
type FlexBool bool

func (b *FlexBool) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = FlexBool(v)
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			*b = true
			return nil
		case "false", "no", "off", "0":
			*b = false
			return nil
		}
	case int:
		*b = v != 0
		return nil
	}
	return fmt.Errorf("invalid boolean value %v", raw)
}

func (b FlexBool) Bool() bool { return bool(b) }
