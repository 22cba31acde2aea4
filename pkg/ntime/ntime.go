package ntime

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// NTime represents a nullable time.Time.
// It can be used as a scan destination and can be marshalled to JSON.
type NTime struct {
	time    time.Time
	isValid bool // false when the time is null
}

// UnmarshalJSON parses an RFC3339 time string into a time.Time object.
func (nt *NTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*nt = NTime{}
		return nil
	}
	parsedTime, err := time.Parse(`"`+time.RFC3339+`"`, string(b))
	if err != nil {
		return err
	}
	*nt = NTime{parsedTime, true}
	return nil
}

// MarshalJSON implements the Marshaller interface and operates on values rather than pointers, given NTime's heft.
func (nt NTime) MarshalJSON() ([]byte, error) {
	if nt.isValid {
		return []byte(fmt.Sprintf("%q", nt.time.UTC().Format(time.RFC3339))), nil
	}
	return []byte("null"), nil
}

// Scan implements the Scanner interface; a null column yields an invalid NTime rather than an error.
func (nt *NTime) Scan(value any) error {
	switch v := value.(type) {
	case time.Time:
		nt.time, nt.isValid = v, true
	case string:
		parsedTime, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return err
		}
		nt.time, nt.isValid = parsedTime, true
	default:
		nt.time, nt.isValid = time.Time{}, false
	}
	return nil
}

// Value implements the driver Valuer interface.
func (nt NTime) Value() (driver.Value, error) {
	if nt.isValid {
		return driver.Value(nt.time.UTC().Format(time.RFC3339)), nil
	}
	return nil, nil
}

func Now() NTime {
	return NTime{time: time.Now().UTC(), isValid: true}
}

func FromTime(t time.Time) NTime {
	return NTime{time: t.UTC(), isValid: true}
}

// Time returns the wrapped time, zero valued when null.
func (nt NTime) Time() time.Time {
	return nt.time
}

func (nt NTime) IsZero() bool {
	return !nt.isValid
}

func (nt NTime) Before(compared NTime) bool {
	return nt.time.Before(compared.time)
}
