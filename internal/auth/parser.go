package auth

import (
	"net/http"
	"strings"
)

// GetAuthType determines the authentication type of a request.
// Headers with a keyword other than Token or Bearer are treated as anonymous,
// leaving them to other authentication schemes.
func GetAuthType(r *http.Request) AuthType {
	keyword, _, _ := strings.Cut(strings.TrimSpace(r.Header.Get(AuthorizationHeader)), " ")
	if isTokenKeyword(keyword) {
		return AuthTypeToken
	}
	return AuthTypeAnonymous
}

// ParseTokenHeader extracts the key from an "Authorization: Token <key>" or
// "Authorization: Bearer <key>" header value.
func ParseTokenHeader(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) == 0 || !isTokenKeyword(parts[0]) {
		return "", ErrNoCredentials
	}
	switch len(parts) {
	case 1:
		return "", ErrNoCredentials
	case 2:
		return parts[1], nil
	default:
		return "", ErrTokenHasSpaces
	}
}

func isTokenKeyword(s string) bool {
	return strings.EqualFold(s, KeywordToken) || strings.EqualFold(s, KeywordBearer)
}
