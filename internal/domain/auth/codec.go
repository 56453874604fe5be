package auth

import "fmt"

// IdentityPayloadVersion is the current version of the session identity payload.
const IdentityPayloadVersion = 1

// Field keys reuse the directory attribute names; "v" carries the version.
const payloadVersionKey = "v"

// EncodeIdentity converts an Identity into a plain key-value payload for session storage.
// Absent attributes are omitted.
func EncodeIdentity(id Identity) map[string]any {
	m := map[string]any{payloadVersionKey: IdentityPayloadVersion}
	put := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	put(AttrCommonName, id.CommonName)
	put(AttrDisplayName, id.DisplayName)
	put(AttrAccountName, id.AccountName)
	put(AttrEmail, id.Email)
	put(AttrUserPrincipalName, id.UserPrincipalName)
	put(AttrGivenName, id.GivenName)
	put(AttrSurname, id.Surname)
	put(AttrObjectGUID, id.ObjectID)
	if len(id.Groups) > 0 {
		groups := make([]string, len(id.Groups))
		copy(groups, id.Groups)
		m[AttrMemberOf] = groups
	}
	return m
}

// DecodeIdentity rebuilds an Identity from a payload written by EncodeIdentity. It
// accepts payloads that went through a JSON round trip (numbers as float64, lists as
// []any). Unknown versions, ill-typed fields and identities without a stable
// identifier fail with KindSessionRestore.
func DecodeIdentity(m map[string]any) (Identity, error) {
	const op = "decode identity"
	if m == nil {
		return Identity{}, NewError(KindSessionRestore, op, fmt.Errorf("empty payload"))
	}

	version, ok := toInt(m[payloadVersionKey])
	if !ok || version != IdentityPayloadVersion {
		return Identity{}, NewError(KindSessionRestore, op, fmt.Errorf("unsupported payload version %v", m[payloadVersionKey]))
	}

	var id Identity
	fields := []struct {
		key string
		dst *string
	}{
		{AttrCommonName, &id.CommonName},
		{AttrDisplayName, &id.DisplayName},
		{AttrAccountName, &id.AccountName},
		{AttrEmail, &id.Email},
		{AttrUserPrincipalName, &id.UserPrincipalName},
		{AttrGivenName, &id.GivenName},
		{AttrSurname, &id.Surname},
		{AttrObjectGUID, &id.ObjectID},
	}
	for _, f := range fields {
		raw, present := m[f.key]
		if !present || raw == nil {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			return Identity{}, NewError(KindSessionRestore, op, fmt.Errorf("field %q has type %T", f.key, raw))
		}
		*f.dst = s
	}

	groups, err := decodeGroups(m[AttrMemberOf])
	if err != nil {
		return Identity{}, NewError(KindSessionRestore, op, err)
	}
	id.Groups = groups

	if !id.Valid() {
		return Identity{}, NewError(KindSessionRestore, op, fmt.Errorf("identity has no stable identifier"))
	}
	return id, nil
}

func decodeGroups(raw any) ([]string, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
		out := make([]string, len(t))
		copy(out, t)
		return out, nil
	case []any:
		var out []string
		for _, v := range t {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("group entry has type %T", v)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("groups have type %T", raw)
	}
}
