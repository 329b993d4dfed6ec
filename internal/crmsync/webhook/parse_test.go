package webhook

import (
	"net/url"
	"testing"
)

func TestParseFormNestsBracketKeys(t *testing.T) {
	values := url.Values{
		"event":                     {"ONCRMDEALUPDATE"},
		"ts":                        {"1700000000"},
		"auth[application_token]":   {"tok123"},
		"auth[domain]":              {"portal.bitrix24.com"},
		"data[FIELDS][ID]":          {"42"},
		"data[FIELDS][ENTITY_TYPE_ID]": {"2"},
	}

	tree, warnings := ParseForm(values)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	if got := StringAt(tree, "event"); got != "ONCRMDEALUPDATE" {
		t.Fatalf("event = %q", got)
	}
	if got := StringAt(tree, "auth", "application_token"); got != "tok123" {
		t.Fatalf("auth.application_token = %q", got)
	}
	if got := StringAt(tree, "auth", "domain"); got != "portal.bitrix24.com" {
		t.Fatalf("auth.domain = %q", got)
	}
	if got, ok := Int64At(tree, "data", "FIELDS", "ID"); !ok || got != 42 {
		t.Fatalf("data.FIELDS.ID = %v, %v", got, ok)
	}
	if got, ok := Int64At(tree, "data", "FIELDS", "ENTITY_TYPE_ID"); !ok || got != 2 {
		t.Fatalf("data.FIELDS.ENTITY_TYPE_ID = %v, %v", got, ok)
	}
}

func TestParseFormConflictingIntermediateWarns(t *testing.T) {
	values := url.Values{
		"data":            {"flat-value"},
		"data[FIELDS][ID]": {"7"},
	}

	tree, warnings := ParseForm(values)
	if len(warnings) == 0 {
		t.Fatal("expected a warning for the conflicting intermediate")
	}
	if got, ok := Int64At(tree, "data", "FIELDS", "ID"); !ok || got != 7 {
		t.Fatalf("data.FIELDS.ID = %v, %v", got, ok)
	}
}

func TestStringAtMissingPathReturnsEmpty(t *testing.T) {
	tree := map[string]interface{}{"a": map[string]interface{}{"b": "c"}}
	if got := StringAt(tree, "a", "x"); got != "" {
		t.Fatalf("StringAt = %q, want empty", got)
	}
	if got := StringAt(tree, "a", "b", "c"); got != "" {
		t.Fatalf("StringAt past a leaf = %q, want empty", got)
	}
}

func TestInt64AtNonNumericReturnsFalse(t *testing.T) {
	tree := map[string]interface{}{"ts": "not-a-number"}
	if _, ok := Int64At(tree, "ts"); ok {
		t.Fatal("expected ok=false for non-numeric value")
	}
}
