package llm

import (
	"strings"

	apperrors "z-script-ai-api/pkg/errors"
)

// 常见的示例/占位凭据
var placeholderKeys = map[string]struct{}{
	"your-api-key":      {},
	"your_api_key":      {},
	"your-openai-key":   {},
	"<your-api-key>":    {},
	"<api-key>":         {},
	"sk-xxx":            {},
	"sk-xxxx":           {},
	"sk-xxxxxxxx":       {},
	"sk-...":            {},
	"sk-your-key-here":  {},
	"xxx":               {},
	"changeme":          {},
	"placeholder":       {},
	"replace-me":        {},
	"todo":              {},
	"none":              {},
	"null":              {},
	"undefined":         {},
	"${llm_api_key}":    {},
	"${openai_api_key}": {},
}

// ValidateAPIKey 不发起网络请求的凭据校验
func ValidateAPIKey(provider, key string) error {
	k := strings.TrimSpace(key)
	if k == "" {
		return apperrors.ConfigurationError("credential for provider %q is empty", provider)
	}
	if _, ok := placeholderKeys[strings.ToLower(k)]; ok {
		return apperrors.ConfigurationError("credential for provider %q is a placeholder value", provider)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 0x80 {
			return apperrors.ConfigurationError("credential for provider %q contains non-ASCII characters", provider)
		}
		if c < 0x20 || c == 0x7f {
			return apperrors.ConfigurationError("credential for provider %q contains control characters", provider)
		}
	}
	return nil
}
