// Package webhook implements the webhook intake pipeline (component I):
// parsing, token+timestamp verification, per-entity dispatch against the
// ingest pipeline, lock-guarded idempotent reconciliation (§4.6).
package webhook

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
)

// bracketKey splits "data[FIELDS][ID]" into ["data", "FIELDS", "ID"].
var bracketKey = regexp.MustCompile(`\[([^\]]*)\]`)

// ParseForm nests Bitrix24's bracket-key form encoding into a tree of
// map[string]interface{} / string leaves. A key whose path collides with an
// already-set non-map intermediate is overwritten with a fresh map; the
// caller surfaces that as a logged warning, not an error, per §4.6 step 1.
func ParseForm(values url.Values) (map[string]interface{}, []string) {
	root := map[string]interface{}{}
	var warnings []string

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		path := splitKey(key)
		if len(path) == 0 {
			continue
		}
		if warned := setPath(root, path, vals[0]); warned {
			warnings = append(warnings, "conflicting intermediate overwritten for key "+key)
		}
	}
	return root, warnings
}

// splitKey turns "data[FIELDS][ID]" into ["data", "FIELDS", "ID"] and a bare
// "event" into ["event"].
func splitKey(key string) []string {
	idx := bracketKey.FindStringIndex(key)
	if idx == nil {
		return []string{key}
	}
	head := key[:idx[0]]
	rest := bracketKey.FindAllStringSubmatch(key, -1)
	path := []string{head}
	for _, m := range rest {
		path = append(path, m[1])
	}
	return path
}

// setPath writes value at path inside root, creating intermediate maps as
// needed. Returns true if an existing non-map value had to be replaced.
func setPath(root map[string]interface{}, path []string, value string) bool {
	node := root
	warned := false
	for i, seg := range path {
		if i == len(path)-1 {
			node[seg] = value
			return warned
		}
		next, ok := node[seg]
		if !ok {
			m := map[string]interface{}{}
			node[seg] = m
			node = m
			continue
		}
		m, ok := next.(map[string]interface{})
		if !ok {
			m = map[string]interface{}{}
			node[seg] = m
			warned = true
		}
		node = m
	}
	return warned
}

// StringAt reads a string leaf at path, empty string if absent or not a leaf.
func StringAt(tree map[string]interface{}, path ...string) string {
	node := interface{}(tree)
	for _, seg := range path {
		m, ok := node.(map[string]interface{})
		if !ok {
			return ""
		}
		node, ok = m[seg]
		if !ok {
			return ""
		}
	}
	s, _ := node.(string)
	return s
}

// Int64At reads an integer leaf at path.
func Int64At(tree map[string]interface{}, path ...string) (int64, bool) {
	s := StringAt(tree, path...)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
