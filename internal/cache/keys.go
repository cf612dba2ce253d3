package cache

import "fmt"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func AnalysisKey(provider, fingerprint string) string {
	return fmt.Sprintf("analysis:%s:%s", provider, fingerprint)
}
