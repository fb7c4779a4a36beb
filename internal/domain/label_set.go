package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// LabelSet stores allocation labels inside a JSON column.
type LabelSet map[string]string

// Value implements driver.Valuer so LabelSet can be stored as JSON.
func (l LabelSet) Value() (driver.Value, error) {
	if len(l) == 0 {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(map[string]string(l))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Scan implements sql.Scanner to hydrate the LabelSet from the database.
func (l *LabelSet) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return l.unmarshal(v)
	case string:
		return l.unmarshal([]byte(v))
	default:
		return fmt.Errorf("domain.LabelSet: unsupported type %T", value)
	}
}

func (l *LabelSet) unmarshal(data []byte) error {
	if len(data) == 0 {
		*l = nil
		return nil
	}

	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Clone returns a copy of the underlying map to avoid sharing memory.
func (l LabelSet) Clone() map[string]string {
	if len(l) == 0 {
		return nil
	}
	out := make(map[string]string, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
