package dnspublisher

import (
	"strings"

	"github.com/certflow/certflow/core/certorder"
)

// SplitCredential splits a colon-separated credential into exactly parts
// non-empty segments. The shape mismatch error names the expected format so
// operators can fix the stored credential without reading vendor docs.
func SplitCredential(provider certorder.ProviderType, credential, want string, parts int) ([]string, error) {
	segments := strings.Split(credential, ":")
	if len(segments) != parts {
		return nil, &CredentialFormatError{Provider: provider, Want: want}
	}
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return nil, &CredentialFormatError{Provider: provider, Want: want}
		}
	}
	return segments, nil
}

// SingleToken validates a single-token credential: non-empty and without
// separator characters that would indicate a pasted multi-part credential.
func SingleToken(provider certorder.ProviderType, credential string) (string, error) {
	token := strings.TrimSpace(credential)
	if token == "" || strings.ContainsAny(token, " \t\n") {
		return "", &CredentialFormatError{Provider: provider, Want: "a single API token"}
	}
	return token, nil
}
