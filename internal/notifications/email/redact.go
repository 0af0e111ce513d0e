package email

import "strings"

// RedactEmail masks an address for logging: "kai@surf.io" becomes
// "k***@surf.io". Strings without an "@" are fully masked.
func RedactEmail(addr string) string {
	if addr == "" {
		return ""
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
