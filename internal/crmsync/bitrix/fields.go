// Package bitrix implements the outbound CRM adapter: the authenticated
// HTTP client (component B) and the field encoding/decoding rules the
// wire boundary requires.
package bitrix

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AliasChoice selects which of a dual-alias field's two names to use.
type AliasChoice int

const (
	AliasFirst  AliasChoice = 1
	AliasSecond AliasChoice = 2
)

// DualAlias is a CRM field with two valid wire names for the same value
// (e.g. ALL-CAPS legacy vs camelCase crm.item.* naming).
type DualAlias struct {
	First  string
	Second string
}

// Name returns the wire name for the given alias choice, defaulting to
// First on any unrecognized choice.
func (d DualAlias) Name(choice AliasChoice) string {
	if choice == AliasSecond {
		return d.Second
	}
	return d.First
}

// BoolStyle distinguishes the two boolean wire encodings CRM uses.
type BoolStyle int

const (
	// BoolNormal is the "Y"/"N" encoding used by ordinary CRM fields.
	BoolNormal BoolStyle = iota
	// BoolUserField is the "1"/"0" encoding used by selected UF_* fields.
	BoolUserField
)

// EncodeBool renders a boolean in the requested wire style.
func EncodeBool(v bool, style BoolStyle) string {
	switch style {
	case BoolUserField:
		if v {
			return "1"
		}
		return "0"
	default:
		if v {
			return "Y"
		}
		return "N"
	}
}

// DecodeBool maps the CRM inbound truthy set {"Y","1",1,true} to true;
// everything else, including empty string and "N"/"0", decodes to false.
func DecodeBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch t {
		case "Y", "1":
			return true
		default:
			return false
		}
	case int:
		return t == 1
	case int64:
		return t == 1
	case float64:
		return t == 1
	default:
		return false
	}
}

// DateTimeLayout is the default CRM datetime wire format.
const DateTimeLayout = "2006-01-02T15:04:05Z07:00"

// LastCommunicationTimeLayout is the one documented exception to
// DateTimeLayout: the last-communication-time field uses a day-first
// dotted format instead of the usual ISO-8601-with-offset form.
const LastCommunicationTimeLayout = "02.01.2006 15:04:05"

// EncodeDateTime renders t per layout, defaulting to DateTimeLayout
// unless isLastCommunicationTime requests the documented exception.
func EncodeDateTime(t time.Time, isLastCommunicationTime bool) string {
	if isLastCommunicationTime {
		return t.Format(LastCommunicationTimeLayout)
	}
	return t.Format(DateTimeLayout)
}

// DecodeDateTime parses either ISO-8601-with-offset or the dotted
// DD.MM.YYYY HH:MM:SS form CRM may send inbound.
func DecodeDateTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("bitrix: empty datetime")
	}
	if t, err := time.Parse(DateTimeLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(LastCommunicationTimeLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("bitrix: unrecognized datetime format %q", raw)
}

// EncodeMoney renders a "<amount>|<currency>" wire value.
func EncodeMoney(amount float64, currency string) string {
	return fmt.Sprintf("%s|%s", strconv.FormatFloat(amount, 'f', -1, 64), currency)
}

// DecodeMoney extracts the numeric amount from a "<amount>|<currency>"
// wire value, discarding the currency suffix (per §6, inbound decoding
// extracts e.g. "1953500|KZT" to 1953500.0).
func DecodeMoney(raw string) (float64, error) {
	parts := strings.SplitN(raw, "|", 2)
	amount, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("bitrix: invalid money value %q: %w", raw, err)
	}
	return amount, nil
}

// FieldValue is the {valueId, value} wrapper CRM uses for multi-value
// fields such as phone/email/web entries.
type FieldValue struct {
	ValueID string      `json:"valueId,omitempty"`
	Value   interface{} `json:"value"`
}

// TypedValue is the {TEXT, TYPE} inner form a FieldValue's Value may take.
type TypedValue struct {
	Text string `json:"TEXT"`
	Type string `json:"TYPE"`
}

// NormalizeInbound applies the inbound decoding rules that are
// field-type-agnostic: empty strings become nil, and numeric-looking
// strings for id-like fields become numbers. Field-specific decoding
// (bool/datetime/money) is applied by the caller once the field's type
// is known; this pass only clears the ambiguous stdlib-untyped cases a
// form-encoded body always introduces.
func NormalizeInbound(raw string, isIDField bool) interface{} {
	if raw == "" {
		return nil
	}
	if isIDField {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return raw
}
