package engine

import (
	"time"

	"github.com/tailview/tailview/internal/model"
	"github.com/valyala/fastjson"
)

// Decoder turns raw log lines into records. Lines that parse as JSON
// objects become structured records; everything else degrades to a raw
// record carrying the original text. A malformed line is never dropped
// and never surfaces an error.
type Decoder struct {
	parsers fastjson.ParserPool
}

// Decode maps one line to a record. The line is assumed to have its
// trailing newline already stripped.
func (d *Decoder) Decode(line string) model.Record {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.Parse(line)
	if err != nil || v.Type() != fastjson.TypeObject {
		return model.NewRaw(line, time.Now())
	}

	obj, err := v.Object()
	if err != nil {
		return model.NewRaw(line, time.Now())
	}

	fields := make(map[string]any, obj.Len())
	obj.Visit(func(key []byte, val *fastjson.Value) {
		fields[string(key)] = jsonValue(val)
	})
	return model.NewStructured(fields)
}

// jsonValue converts a parsed value into plain Go types, matching the
// shapes encoding/json produces (float64 numbers, nested maps/slices).
func jsonValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return nil
		}
		m := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			m[string(key)] = jsonValue(val)
		})
		return m
	case fastjson.TypeArray:
		arr, err := v.Array()
		if err != nil {
			return nil
		}
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			out = append(out, jsonValue(item))
		}
		return out
	default:
		return nil
	}
}
