package model

// DefaultSensitiveKeys are the payload keys dropped before a payload is
// hashed or persisted. The set can be overridden by the policy file.
// juminNumber is a national resident registration number.
func DefaultSensitiveKeys() []string {
	return []string{
		"userPassword",
		"juminNumber",
		"refreshToken",
		"accessToken",
	}
}

// RedactPayload returns a deep copy of value with every sensitive key
// removed, recursively. Redaction happens before hashing, so a change that
// only touches a redacted field is invisible to the diff engine.
func RedactPayload(value any, sensitiveKeys []string) any {
	keys := make(map[string]struct{}, len(sensitiveKeys))
	for _, k := range sensitiveKeys {
		keys[k] = struct{}{}
	}
	return redact(value, keys)
}

func redact(value any, keys map[string]struct{}) any {
	switch v := value.(type) {
	case map[string]any:
		sanitized := make(map[string]any, len(v))
		for key, item := range v {
			if _, ok := keys[key]; ok {
				continue
			}
			sanitized[key] = redact(item, keys)
		}
		return sanitized
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = redact(item, keys)
		}
		return items
	default:
		return value
	}
}

// RedactObject is RedactPayload constrained to map payloads, which is what
// the KVCA endpoints return at the top level.
func RedactObject(payload map[string]any, sensitiveKeys []string) map[string]any {
	redacted, ok := RedactPayload(payload, sensitiveKeys).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return redacted
}
