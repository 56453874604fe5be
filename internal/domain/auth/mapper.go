package auth

import (
	"cmp"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// Directory attribute names requested for every identity lookup.
const (
	AttrCommonName        = "cn"
	AttrDisplayName       = "displayname"
	AttrAccountName       = "samaccountname"
	AttrEmail             = "mail"
	AttrMemberOf          = "memberof"
	AttrUserPrincipalName = "userprincipalname"
	AttrGivenName         = "givenname"
	AttrSurname           = "sn"
	AttrObjectGUID        = "objectguid"
)

// IdentityAttributes lists the attributes a lookup must request.
func IdentityAttributes() []string {
	return []string{
		AttrCommonName,
		AttrDisplayName,
		AttrAccountName,
		AttrEmail,
		AttrMemberOf,
		AttrUserPrincipalName,
		AttrGivenName,
		AttrSurname,
		AttrObjectGUID,
	}
}

// countKey marks a counted sequence: {"count": n, "0": v0, "1": v1, ...}.
const countKey = "count"

// RawEntry is a directory entry as an attribute bag. Keys are attribute names; values
// may be a string, []byte, []string, [][]byte, []any, or a counted map. Only MapEntry
// interprets these shapes.
type RawEntry struct {
	DN         string
	Attributes map[string]any
}

// MapEntry converts a raw entry into an Identity. Missing or ill-typed attributes map
// to empty values; it never fails.
func MapEntry(raw RawEntry) Identity {
	attrs := lowerKeys(raw.Attributes)
	return Identity{
		CommonName:        firstString(attrs[AttrCommonName]),
		DisplayName:       firstString(attrs[AttrDisplayName]),
		AccountName:       firstString(attrs[AttrAccountName]),
		Email:             firstString(attrs[AttrEmail]),
		UserPrincipalName: firstString(attrs[AttrUserPrincipalName]),
		GivenName:         firstString(attrs[AttrGivenName]),
		Surname:           firstString(attrs[AttrSurname]),
		ObjectID:          encodeGUID(firstBytes(attrs[AttrObjectGUID])),
		Groups:            stringSequence(attrs[AttrMemberOf]),
	}
}

func lowerKeys(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// values flattens any supported shape into an ordered slice.
func values(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, []byte:
		return []any{t}
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case [][]byte:
		out := make([]any, len(t))
		for i, b := range t {
			out[i] = b
		}
		return out
	case []any:
		return t
	case map[string]any:
		return countedValues(t)
	default:
		return nil
	}
}

func countedValues(m map[string]any) []any {
	n, ok := toInt(m[countKey])
	if !ok || n <= 0 {
		return nil
	}
	// Walk the keys rather than 0..count so a bogus count costs nothing.
	type indexed struct {
		i int
		v any
	}
	vals := make([]indexed, 0, len(m))
	for k, v := range m {
		if i, err := strconv.Atoi(k); err == nil && i >= 0 && i < n {
			vals = append(vals, indexed{i: i, v: v})
		}
	}
	slices.SortFunc(vals, func(a, b indexed) int { return cmp.Compare(a.i, b.i) })
	out := make([]any, 0, len(vals))
	for _, e := range vals {
		out = append(out, e.v)
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func firstString(v any) string {
	vals := values(v)
	if len(vals) == 0 {
		return ""
	}
	switch s := vals[0].(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func firstBytes(v any) []byte {
	vals := values(v)
	if len(vals) == 0 {
		return nil
	}
	switch b := vals[0].(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

func stringSequence(v any) []string {
	var out []string
	for _, item := range values(v) {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func encodeGUID(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	return hex.EncodeToString(raw)
}
