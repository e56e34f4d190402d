// Package export converts decoded AMF value trees into plain Go values
// (maps, slices and scalars) that generic YAML, JSON and CBOR encoders can
// render.
//
// Keys starting with "$" carry AMF metadata that has no plain equivalent:
// $class, $id, $ref, $amf0ref, $date, $xml and so on.
//
// Byte arrays become standard base64 strings. Non-finite doubles become the
// strings "NaN", "+Inf" and "-Inf", which every output format can carry.
package export

import (
	"encoding/base64"
	"math"
	"strconv"
	"time"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Value converts v. Object property order is not preserved by the map form.
func Value(v amf.Value) any {
	switch v := v.(type) {
	case nil, amf.Null:
		return nil
	case amf.Number:
		return number(float64(v))
	case amf.Bool:
		return bool(v)
	case amf.String:
		return string(v)
	case amf.Integer:
		return int64(v)
	case amf.Undefined:
		return map[string]any{"$undefined": true}
	case amf.Unsupported:
		return map[string]any{"$unsupported": true}
	case *amf.Object:
		out := Elements(v.Elements)
		annotate(out, v.ID, v.Class)
		return out
	case *amf.Custom:
		out := Elements(v.Elements)
		out["$external"] = Elements(v.External)
		annotate(out, v.ID, v.Class)
		return out
	case *amf.ECMAArray:
		out := Elements(v.Assoc)
		out["$dense"] = values(v.Dense)
		out["$length"] = v.Length
		annotate(out, v.ID, nil)
		return out
	case *amf.StrictArray:
		return values(v.Values)
	case amf.Date:
		out := map[string]any{
			"$date": time.UnixMilli(int64(v.Time)).UTC().Format(time.RFC3339Nano),
		}
		if v.HasTimezone {
			out["$timezone"] = v.Timezone
		}
		return out
	case amf.XML:
		return map[string]any{"$xml": v.Content}
	case amf.AMF3:
		return Value(v.Value)
	case amf.ByteArray:
		return base64.StdEncoding.EncodeToString(v)
	case amf.VectorInt:
		return vector(v.Items, v.Fixed)
	case amf.VectorUInt:
		return vector(v.Items, v.Fixed)
	case amf.VectorDouble:
		items := make([]any, 0, len(v.Items))
		for _, f := range v.Items {
			items = append(items, number(f))
		}
		return map[string]any{"$items": items, "$fixed": v.Fixed}
	case *amf.VectorObject:
		out := map[string]any{
			"$items": values(v.Items),
			"$type":  v.TypeName,
			"$fixed": v.Fixed,
		}
		annotate(out, v.ID, nil)
		return out
	case *amf.Dictionary:
		entries := make([]any, 0, len(v.Entries))
		for _, e := range v.Entries {
			entries = append(entries, map[string]any{
				"key":   Value(e.Key),
				"value": Value(e.Value),
			})
		}
		out := map[string]any{"$entries": entries, "$weak": v.WeakKeys}
		annotate(out, v.ID, nil)
		return out
	case amf.Reference:
		return map[string]any{"$amf0ref": uint16(v)}
	case amf.ObjectReference:
		return map[string]any{"$ref": uint32(v.ID)}
	}
	return nil
}

// Elements converts a list of elements to a map. A later duplicate name
// replaces an earlier one.
func Elements(elements []amf.Element) map[string]any {
	out := make(map[string]any, len(elements))
	for _, el := range elements {
		out[el.Name] = Value(el.Value)
	}
	return out
}

func values(vs []amf.Value) []any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, Value(v))
	}
	return out
}

// number keeps finite values as float64
func number(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func vector[T int32 | uint32](items []T, fixed bool) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{"$items": items, "$fixed": fixed}
}

func annotate(out map[string]any, id amf.ObjectID, class *amf.ClassDefinition) {
	if id != amf.NoID {
		out["$id"] = uint32(id)
	}
	if class != nil && class.Name != "" {
		out["$class"] = class.Name
	}
}
