package ddconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringList binds the config's "scalar-or-sequence" polymorphism: a field
// like an item's `presets` may be written as a single name or as a list of
// names.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	case 0:
		*l = nil
		return nil
	default:
		return fmt.Errorf("invalid string-or-list node kind %v", value.Kind)
	}
}
