package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is the typed escape hatch for extension fields not promoted to first class columns.
// Frequently filtered values (owner email, conversation id, collectible id) belong
// in real columns instead, where the storage layer can index them.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	serialised, err := json.Marshal(m)
	return string(serialised), err
}

func (m *JSONMap) Scan(value any) error {
	return scanJSON(value, m)
}

// StringList stores an ordered list of strings, such as image references, in a single JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	serialised, err := json.Marshal(l)
	return string(serialised), err
}

func (l *StringList) Scan(value any) error {
	return scanJSON(value, l)
}

func scanJSON(value any, target any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), target)
	case []byte:
		return json.Unmarshal(v, target)
	default:
		return fmt.Errorf("can't scan %T into a JSON column", value)
	}
}
