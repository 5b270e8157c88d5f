package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field names a single mutable client attribute. Patches address fields
// through these constants rather than raw strings so that a misspelled field
// name fails to compile at the call site.
type Field string

// Mutable client fields addressable by patches.
const (
	FieldClientNumber  Field = "client_number"
	FieldUUID          Field = "uuid"
	FieldExternalRef   Field = "external_ref"
	FieldName          Field = "name"
	FieldEmail         Field = "email"
	FieldPhone         Field = "phone"
	FieldStatus        Field = "status"
	FieldPriority      Field = "priority"
	FieldAssignedTo    Field = "assigned_to"
	FieldContactCount  Field = "contact_count"
	FieldLastContactAt Field = "last_contact_at"
	FieldNotes         Field = "notes"
	FieldTags          Field = "tags"
)

// Fields lists every patchable field in declaration order.
func Fields() []Field {
	return []Field{
		FieldClientNumber, FieldUUID, FieldExternalRef,
		FieldName, FieldEmail, FieldPhone,
		FieldStatus, FieldPriority, FieldAssignedTo,
		FieldContactCount, FieldLastContactAt,
		FieldNotes, FieldTags,
	}
}

// ParseField validates a wire-level field name.
func ParseField(name string) (Field, error) {
	f := Field(name)
	for _, known := range Fields() {
		if f == known {
			return f, nil
		}
	}
	return "", UnknownFieldError{Name: name}
}

// Changes is a field-level delta. A key mapped to nil means "explicitly
// cleared"; a key that is absent means the field is not part of the delta.
// The two are never interchangeable.
type Changes map[Field]any

// Clone returns a shallow copy of the delta.
func (ch Changes) Clone() Changes {
	if ch == nil {
		return nil
	}
	out := make(Changes, len(ch))
	for f, v := range ch {
		out[f] = v
	}
	return out
}

// UnmarshalJSON decodes a wire-level delta through ParseChanges so that
// deltas arriving over HTTP or the relay carry canonical field types.
func (ch *Changes) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseChanges(raw)
	if err != nil {
		return err
	}
	*ch = parsed
	return nil
}

// Value returns the current value of field f. Nullable fields report nil
// when unset so that a cleared field and a nil change value compare equal.
func (c *Client) Value(f Field) (any, error) {
	switch f {
	case FieldClientNumber:
		return c.ClientNumber, nil
	case FieldUUID:
		return c.UUID, nil
	case FieldExternalRef:
		return c.ExternalRef, nil
	case FieldName:
		return c.Name, nil
	case FieldEmail:
		return c.Email, nil
	case FieldPhone:
		return c.Phone, nil
	case FieldStatus:
		return c.Status, nil
	case FieldPriority:
		return c.Priority, nil
	case FieldAssignedTo:
		if c.AssignedTo == nil {
			return nil, nil
		}
		return *c.AssignedTo, nil
	case FieldContactCount:
		return c.ContactCount, nil
	case FieldLastContactAt:
		if c.LastContactAt == nil {
			return nil, nil
		}
		return *c.LastContactAt, nil
	case FieldNotes:
		return c.Notes, nil
	case FieldTags:
		if c.Tags == nil {
			return nil, nil
		}
		return append([]string(nil), c.Tags...), nil
	default:
		return nil, UnknownFieldError{Name: string(f)}
	}
}

// Apply merges the delta into the client. Values must carry the field's
// native type; nil clears nullable fields.
func (c *Client) Apply(ch Changes) error {
	for f, v := range ch {
		if err := c.setField(f, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) setField(f Field, v any) error {
	switch f {
	case FieldClientNumber:
		return assignString(f, v, &c.ClientNumber)
	case FieldUUID:
		return assignString(f, v, &c.UUID)
	case FieldExternalRef:
		return assignString(f, v, &c.ExternalRef)
	case FieldName:
		return assignString(f, v, &c.Name)
	case FieldEmail:
		return assignString(f, v, &c.Email)
	case FieldPhone:
		return assignString(f, v, &c.Phone)
	case FieldNotes:
		return assignString(f, v, &c.Notes)
	case FieldStatus:
		switch val := v.(type) {
		case ClientStatus:
			c.Status = val
		case string:
			c.Status = ClientStatus(val)
		default:
			return fieldTypeError(f, v)
		}
	case FieldPriority:
		switch val := v.(type) {
		case Priority:
			c.Priority = val
		case string:
			c.Priority = Priority(val)
		default:
			return fieldTypeError(f, v)
		}
	case FieldAssignedTo:
		switch val := v.(type) {
		case nil:
			c.AssignedTo = nil
		case string:
			c.AssignedTo = &val
		default:
			return fieldTypeError(f, v)
		}
	case FieldContactCount:
		switch val := v.(type) {
		case int:
			c.ContactCount = val
		case float64:
			c.ContactCount = int(val)
		default:
			return fieldTypeError(f, v)
		}
	case FieldLastContactAt:
		switch val := v.(type) {
		case nil:
			c.LastContactAt = nil
		case time.Time:
			c.LastContactAt = &val
		case string:
			t, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return fmt.Errorf("field %s: %w", f, err)
			}
			c.LastContactAt = &t
		default:
			return fieldTypeError(f, v)
		}
	case FieldTags:
		switch val := v.(type) {
		case nil:
			c.Tags = nil
		case []string:
			c.Tags = append([]string(nil), val...)
		case []any:
			tags := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return fieldTypeError(f, v)
				}
				tags = append(tags, s)
			}
			c.Tags = tags
		default:
			return fieldTypeError(f, v)
		}
	default:
		return UnknownFieldError{Name: string(f)}
	}
	return nil
}

func assignString(f Field, v any, dst *string) error {
	s, ok := v.(string)
	if !ok {
		return fieldTypeError(f, v)
	}
	*dst = s
	return nil
}

func fieldTypeError(f Field, v any) error {
	return fmt.Errorf("field %s: unsupported value type %T", f, v)
}

// ParseChanges converts a wire-level delta (JSON object keys and values)
// into a typed Changes map, rejecting unknown field names. Values are
// canonicalized to the field's native type (JSON numbers become ints for
// count fields, RFC3339 strings become time.Time, and so on) so that deltas
// parsed from the wire compare cleanly against stored records.
func ParseChanges(raw map[string]any) (Changes, error) {
	if len(raw) == 0 {
		return Changes{}, nil
	}
	out := make(Changes, len(raw))
	for name, v := range raw {
		f, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		var scratch Client
		if err := scratch.setField(f, v); err != nil {
			return nil, err
		}
		if v == nil {
			out[f] = nil
			continue
		}
		canon, err := scratch.Value(f)
		if err != nil {
			return nil, err
		}
		out[f] = canon
	}
	return out, nil
}
