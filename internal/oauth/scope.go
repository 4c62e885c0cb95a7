package oauth

import "strings"

// ParseScope splits a space-delimited scope string into tokens, dropping
// empty entries.
func ParseScope(scope string) []string {
	var out []string
	for _, tok := range strings.Fields(scope) {
		out = append(out, tok)
	}
	return out
}

// JoinScope renders a scope set back into its wire form.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// NegotiateScope validates a requested scope string against a client's
// registered scopes. An empty request resolves to {defaultScope} when the
// client has it registered, otherwise to the full registered set. Any
// requested token outside the registered set fails invalid_scope; the
// granted set is never silently narrowed or widened.
func NegotiateScope(requested string, clientScopes []string, defaultScope string) ([]string, error) {
	registered := make(map[string]bool, len(clientScopes))
	for _, s := range clientScopes {
		registered[s] = true
	}

	tokens := ParseScope(requested)
	if len(tokens) == 0 {
		if registered[defaultScope] {
			return []string{defaultScope}, nil
		}
		granted := make([]string, len(clientScopes))
		copy(granted, clientScopes)
		return granted, nil
	}

	for _, tok := range tokens {
		if !registered[tok] {
			return nil, NewError(ErrCodeInvalidScope, "scope not registered for client: "+tok)
		}
	}
	return tokens, nil
}

// ScopesContain reports whether granted covers every token in required.
func ScopesContain(granted, required []string) bool {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	for _, s := range required {
		if !have[s] {
			return false
		}
	}
	return true
}
