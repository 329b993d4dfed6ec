package emailworker

import "testing"

func TestParseBodyExtractsAllFields(t *testing.T) {
	body := "Добрый день,\n" +
		"Товар: Платок Шёлковый\n" +
		"ID: SHAWL-001\n" +
		"Имя: Анна\n" +
		"Телефон: +77011234567\n" +
		"Комментарий: нужен к пятнице\n"

	got := parseBody(body)
	want := SiteRequest{
		Product: "Платок Шёлковый",
		XMLID:   "SHAWL-001",
		Name:    "Анна",
		Phone:   "+77011234567",
		Comment: "нужен к пятнице",
	}
	if got != want {
		t.Fatalf("parseBody = %+v, want %+v", got, want)
	}
}

func TestParseBodyTolerateMissingFields(t *testing.T) {
	body := "Товар: Платок\nТелефон: +77011234567\n"
	got := parseBody(body)
	if got.Product != "Платок" || got.Phone != "+77011234567" {
		t.Fatalf("parseBody = %+v", got)
	}
	if got.Name != "" || got.Comment != "" || got.XMLID != "" {
		t.Fatalf("expected absent fields to stay empty, got %+v", got)
	}
}

func TestParseBodyIgnoresUnrecognizedLines(t *testing.T) {
	body := "Hello there\nТовар: Платок\nSome noise line\n"
	got := parseBody(body)
	if got.Product != "Платок" {
		t.Fatalf("parseBody = %+v", got)
	}
}
