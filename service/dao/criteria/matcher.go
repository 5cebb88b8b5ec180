package criteria

import (
	"github.com/viant/taskd/service/dao"
)

// Match reports whether an entity satisfies every parameter. field resolves
// a parameter name to the entity's value; parameters naming a field the
// entity does not expose are ignored, and an empty value matches everything.
func Match(field func(name string) (string, bool), parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		value, ok := field(parameter.Name)
		if !ok {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if actual != "" && value != actual {
				return false
			}
		case []string:
			if len(actual) == 0 {
				continue
			}
			matched := false
			for _, candidate := range actual {
				if candidate == value {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}
