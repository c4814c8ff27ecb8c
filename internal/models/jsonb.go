package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB holds a raw JSON document stored in a jsonb column. NULL scans to nil
// and nil marshals to JSON null.
type JSONB []byte

// NewJSONB marshals v, returning nil when v is nil or cannot be encoded.
func NewJSONB(v interface{}) JSONB {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// MarshalJSON emits the document verbatim.
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of data.
func (j *JSONB) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}
