package bitrix

import (
	"testing"
	"time"
)

func TestDualAliasName(t *testing.T) {
	d := DualAlias{First: "STAGE_ID", Second: "stageId"}
	if got := d.Name(AliasFirst); got != "STAGE_ID" {
		t.Fatalf("AliasFirst = %q", got)
	}
	if got := d.Name(AliasSecond); got != "stageId" {
		t.Fatalf("AliasSecond = %q", got)
	}
	if got := d.Name(AliasChoice(99)); got != "STAGE_ID" {
		t.Fatalf("unknown choice should default to first, got %q", got)
	}
}

func TestEncodeBool(t *testing.T) {
	cases := []struct {
		v     bool
		style BoolStyle
		want  string
	}{
		{true, BoolNormal, "Y"},
		{false, BoolNormal, "N"},
		{true, BoolUserField, "1"},
		{false, BoolUserField, "0"},
	}
	for _, c := range cases {
		if got := EncodeBool(c.v, c.style); got != c.want {
			t.Errorf("EncodeBool(%v, %v) = %q, want %q", c.v, c.style, got, c.want)
		}
	}
}

func TestDecodeBool(t *testing.T) {
	truthy := []interface{}{"Y", "1", 1, int64(1), float64(1), true}
	for _, v := range truthy {
		if !DecodeBool(v) {
			t.Errorf("DecodeBool(%#v) = false, want true", v)
		}
	}
	falsy := []interface{}{"N", "0", "", 0, false, nil}
	for _, v := range falsy {
		if DecodeBool(v) {
			t.Errorf("DecodeBool(%#v) = true, want false", v)
		}
	}
}

func TestEncodeDecodeDateTimeRoundTrip(t *testing.T) {
	ref := time.Date(2026, 3, 5, 14, 30, 0, 0, time.FixedZone("", 5*3600))
	wire := EncodeDateTime(ref, false)
	got, err := DecodeDateTime(wire)
	if err != nil {
		t.Fatalf("DecodeDateTime: %v", err)
	}
	if !got.Equal(ref) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, ref)
	}
}

func TestLastCommunicationTimeException(t *testing.T) {
	ref := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	wire := EncodeDateTime(ref, true)
	if wire != "05.03.2026 14:30:00" {
		t.Fatalf("got %q, want dotted day-first format", wire)
	}
	got, err := DecodeDateTime(wire)
	if err != nil {
		t.Fatalf("DecodeDateTime: %v", err)
	}
	if !got.Equal(ref) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, ref)
	}
}

func TestMoneyWireRoundTrip(t *testing.T) {
	wire := EncodeMoney(1953500, "KZT")
	if wire != "1953500|KZT" {
		t.Fatalf("got %q", wire)
	}
	amount, err := DecodeMoney(wire)
	if err != nil {
		t.Fatalf("DecodeMoney: %v", err)
	}
	if amount != 1953500 {
		t.Fatalf("got %v, want 1953500", amount)
	}
}

func TestNormalizeInbound(t *testing.T) {
	if got := NormalizeInbound("", false); got != nil {
		t.Fatalf("empty string should normalize to nil, got %#v", got)
	}
	if got := NormalizeInbound("42", true); got != int64(42) {
		t.Fatalf("numeric id field should normalize to int64, got %#v", got)
	}
	if got := NormalizeInbound("hello", false); got != "hello" {
		t.Fatalf("non-id string should pass through, got %#v", got)
	}
}
