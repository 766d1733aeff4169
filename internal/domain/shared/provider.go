package shared

import "strings"

// ProviderName identifies a financial service provider integration
type ProviderName string

const (
	ProviderNedbank   ProviderName = "nedbank"
	ProviderSafaricom ProviderName = "safaricom"
)

// ParseProviderName normalizes user or webhook supplied provider names
func ParseProviderName(raw string) ProviderName {
	return ProviderName(strings.ToLower(strings.TrimSpace(raw)))
}

func (p ProviderName) String() string {
	return string(p)
}
