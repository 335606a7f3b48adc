package ddconfig

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Offset is an (x, y) pixel offset pair. The config file spells it as the
// string "x,y"; it may also arrive as a two-element sequence.
type Offset struct {
	X, Y int
}

func (o *Offset) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid offset %q, want \"x,y\"", s)
		}
		x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("invalid offset x %q: %w", parts[0], err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("invalid offset y %q: %w", parts[1], err)
		}
		o.X, o.Y = x, y
		return nil
	case yaml.SequenceNode:
		var pair [2]int
		if err := value.Decode(&pair); err != nil {
			return err
		}
		o.X, o.Y = pair[0], pair[1]
		return nil
	default:
		return fmt.Errorf("invalid offset node kind %v", value.Kind)
	}
}
