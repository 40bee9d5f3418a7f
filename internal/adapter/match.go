package adapter

import "harmony-graphql/internal/document"

// MatchField reports whether a stored field value matches a batch key. List
// values match when any element does.
func MatchField(value any, key string) bool {
	if list, ok := value.([]any); ok {
		for _, elem := range list {
			if document.String(elem) == key {
				return true
			}
		}
		return false
	}
	if value == nil {
		return false
	}
	return document.String(value) == key
}

// MatchAny reports whether value matches one of keys.
func MatchAny(value any, keys map[string]struct{}) bool {
	if list, ok := value.([]any); ok {
		for _, elem := range list {
			if _, hit := keys[document.String(elem)]; hit {
				return true
			}
		}
		return false
	}
	if value == nil {
		return false
	}
	_, hit := keys[document.String(value)]
	return hit
}

// KeySet indexes batch keys for MatchAny.
func KeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
