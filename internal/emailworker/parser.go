package emailworker

import "strings"

// SiteRequest is the typed record parsed out of a sales-inquiry email body.
type SiteRequest struct {
	Product string
	XMLID   string
	Name    string
	Phone   string
	Comment string
}

var templateLabels = []struct {
	prefix string
	assign func(*SiteRequest, string)
}{
	{"Товар:", func(r *SiteRequest, v string) { r.Product = v }},
	{"ID:", func(r *SiteRequest, v string) { r.XMLID = v }},
	{"Имя:", func(r *SiteRequest, v string) { r.Name = v }},
	{"Телефон:", func(r *SiteRequest, v string) { r.Phone = v }},
	{"Комментарий:", func(r *SiteRequest, v string) { r.Comment = v }},
}

// parseBody extracts the fixed "Товар:"/"ID:"/"Имя:"/"Телефон:"/"Комментарий:"
// template from a plain-text email body. Unrecognized lines are ignored;
// labels may appear in any order and any subset may be absent.
func parseBody(body string) SiteRequest {
	var req SiteRequest
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, label := range templateLabels {
			if value, ok := cutLabel(line, label.prefix); ok {
				label.assign(&req, value)
				break
			}
		}
	}
	return req
}

func cutLabel(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}
