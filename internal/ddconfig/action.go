package ddconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ActionData is the free-form payload attached to an action step. It is a
// shell command string for $cmd.* verbs, a JSON-shaped mapping for HA
// service calls, or absent (nil) when the step needs none.
type ActionData struct {
	Raw interface{}
}

func (d *ActionData) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d.Raw = normalizeYAMLValue(raw)
	return nil
}

// normalizeYAMLValue recursively copies map[string]interface{} and
// []interface{} values; any other value, including a map with non-string
// keys, is returned as decoded.
func normalizeYAMLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = normalizeYAMLValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = normalizeYAMLValue(vv)
		}
		return out
	default:
		return v
	}
}

func (d ActionData) IsMap() bool {
	_, ok := d.Raw.(map[string]interface{})
	return ok
}

func (d ActionData) AsMap() map[string]interface{} {
	m, _ := d.Raw.(map[string]interface{})
	return m
}

func (d ActionData) AsString() string {
	s, _ := d.Raw.(string)
	return s
}

// CmdTextOpts configures how a captured command's stdout is post-processed
// before becoming an item's displayed text.
type CmdTextOpts struct {
	Trim   FlexBool `yaml:"trim"`
	MaxLen int      `yaml:"max_len"`
}

// DefaultCmdTextOpts returns the documented defaults: trim=true, max_len=32.
func DefaultCmdTextOpts() CmdTextOpts {
	return CmdTextOpts{Trim: true, MaxLen: 32}
}

// ActionStep is one unit of dispatch work: a verb plus an optional payload.
type ActionStep struct {
	Action  string
	Data    ActionData
	CmdText *CmdTextOpts
}

type rawActionStep struct {
	Action  string      `yaml:"action"`
	Data    ActionData  `yaml:"data"`
	CmdText *CmdTextOpts `yaml:"cmd_text"`
}

// ActionSpec is the polymorphic per-event action field: a bare verb string,
// a single {action,data,cmd_text} mapping, or a {actions: [...]} sequence.
type ActionSpec struct {
	Steps []ActionStep
	// Bare is true when the YAML value was a scalar string — the legacy
	// single-action shorthand whose data/cmd_text come from the item's own
	// flat fields rather than from the step itself.
	Bare bool
}

func (a *ActionSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		a.Bare = true
		a.Steps = []ActionStep{{Action: s}}
		return nil
	case yaml.MappingNode:
		var probe struct {
			Actions []rawActionStep `yaml:"actions"`
		}
		if err := value.Decode(&probe); err != nil {
			return err
		}
		if probe.Actions != nil {
			a.Steps = make([]ActionStep, len(probe.Actions))
			for i, s := range probe.Actions {
				a.Steps[i] = ActionStep{Action: s.Action, Data: s.Data, CmdText: s.CmdText}
			}
			return nil
		}
		var single rawActionStep
		if err := value.Decode(&single); err != nil {
			return err
		}
		a.Steps = []ActionStep{{Action: single.Action, Data: single.Data, CmdText: single.CmdText}}
		return nil
	case 0:
		return nil
	default:
		return fmt.Errorf("invalid action node kind %v", value.Kind)
	}
}

// Empty reports whether no action was configured for this event.
func (a *ActionSpec) Empty() bool {
	return a == nil || len(a.Steps) == 0
}
