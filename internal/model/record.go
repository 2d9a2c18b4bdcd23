package model

import (
	"encoding/json"
	"strings"
	"time"
)

// LevelUnknown is reported for records that carry no recognizable level.
const LevelUnknown = "UNKNOWN"

// Record is a single cached log entry. It is either a structured entry
// (a decoded JSON object) or a raw fallback wrapping the original line
// text when decoding failed. Both shapes expose field lookup, level and
// category accessors so callers never branch on the variant directly.
type Record struct {
	ID     int64
	Fields map[string]any // structured payload; nil for raw records
	Raw    string         // original line text; only set for raw records
	Time   time.Time      // decode wall time; only set for raw records
}

// NewStructured wraps a decoded field mapping.
func NewStructured(fields map[string]any) Record {
	return Record{Fields: fields}
}

// NewRaw wraps an undecodable line together with its decode time.
func NewRaw(line string, at time.Time) Record {
	return Record{Raw: line, Time: at}
}

// Structured reports whether the record carries decoded fields.
func (r Record) Structured() bool {
	return r.Fields != nil
}

// Field returns a named field value. Raw records expose only "raw".
func (r Record) Field(name string) (any, bool) {
	if r.Fields != nil {
		v, ok := r.Fields[name]
		return v, ok
	}
	if name == "raw" {
		return r.Raw, true
	}
	return nil, false
}

// stringField returns a field coerced to string, or "".
func (r Record) stringField(name string) string {
	v, ok := r.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Level returns the record's level name, or UNKNOWN.
func (r Record) Level() string {
	if lvl := r.stringField("levelname"); lvl != "" {
		return lvl
	}
	return LevelUnknown
}

// Category returns the dotted category path derived from the record's
// module and logger name fields. Raw records have no category.
func (r Record) Category() string {
	module := r.stringField("module")
	if module == "" {
		return ""
	}
	return module + "." + r.stringField("name")
}

// Timestamp returns the record's event time when one can be derived:
// the numeric "timestamp" field (fractional seconds), the "asctime"
// field, or the decode time for raw records.
func (r Record) Timestamp() (time.Time, bool) {
	if r.Fields == nil {
		return r.Time, !r.Time.IsZero()
	}
	if f, ok := r.Fields["timestamp"].(float64); ok {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)), true
	}
	if s, ok := r.Fields["asctime"].(string); ok {
		for _, layout := range []string{"2006-01-02 15:04:05,000", "2006-01-02 15:04:05"} {
			if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// MarshalJSON renders the record as its field mapping plus the assigned
// "_id". Raw records render as {"_id", "raw", "timestamp"} with the
// timestamp in fractional seconds.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		m[k] = v
	}
	if r.Fields == nil {
		m["raw"] = r.Raw
		m["timestamp"] = float64(r.Time.UnixNano()) / float64(time.Second)
	}
	m["_id"] = r.ID
	return json.Marshal(m)
}

// CanonicalLevel normalizes a level filter value, accepting common
// aliases. The second result is false for names no record can carry.
func CanonicalLevel(name string) (string, bool) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return "DEBUG", true
	case "INFO":
		return "INFO", true
	case "WARN", "WARNING":
		return "WARNING", true
	case "ERROR":
		return "ERROR", true
	case "FATAL", "CRITICAL":
		return "CRITICAL", true
	case LevelUnknown:
		return LevelUnknown, true
	default:
		return "", false
	}
}
