package memory

import "github.com/symphainy/trafficcop/internal/domain"

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneEntry(entry domain.StateEntry) domain.StateEntry {
	entry.Value = cloneValue(entry.Value)
	entry.Metadata = cloneMap(entry.Metadata)
	return entry
}

func cloneSession(session domain.Session) domain.Session {
	session.Dimensions = append([]domain.DimensionID(nil), session.Dimensions...)
	session.Metadata = cloneMap(session.Metadata)
	if session.Refs != nil {
		refs := make(map[string]domain.StateRef, len(session.Refs))
		for k, v := range session.Refs {
			refs[k] = v
		}
		session.Refs = refs
	}
	return session
}

func cloneConflict(conflict domain.Conflict) domain.Conflict {
	conflict.Addresses = append([]domain.StateAddress(nil), conflict.Addresses...)
	competing := make([]domain.StateEntry, len(conflict.Competing))
	for i, entry := range conflict.Competing {
		competing[i] = cloneEntry(entry)
	}
	conflict.Competing = competing
	conflict.ResolvedValue = cloneValue(conflict.ResolvedValue)
	if conflict.ResolvedEntry != nil {
		resolved := cloneEntry(*conflict.ResolvedEntry)
		conflict.ResolvedEntry = &resolved
	}
	return conflict
}
