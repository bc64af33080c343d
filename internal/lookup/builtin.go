package lookup

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ─── Geo by IP ───────────────────────────────────────────────────────────────

// GeoProvider returns a built-in IP geolocation provider by name.
func GeoProvider(name string, client *http.Client) (Provider, error) {
	switch name {
	case "ipapi":
		return &HTTPProvider{ProviderName: name, URL: "https://ipapi.co/%s/json/", Field: "country", Client: client}, nil
	case "ipwhois":
		return &HTTPProvider{
			ProviderName: name,
			URL:          "https://ipwho.is/%s",
			Field:        "country_code",
			SuccessField: "success",
			SuccessValue: "true",
			Client:       client,
		}, nil
	case "ipapicom":
		return &HTTPProvider{
			ProviderName: name,
			URL:          "http://ip-api.com/json/%s",
			Field:        "countryCode",
			SuccessField: "status",
			SuccessValue: "success",
			Client:       client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown geo provider %q", name)
	}
}

// ─── Issuer by BIN ───────────────────────────────────────────────────────────

// DefaultBINTable is the seed of the bintable provider.
var DefaultBINTable = map[string]string{
	"411111": "US",
	"400000": "US",
	"555555": "GB",
	"222222": "DE",
}

// BINProvider returns a built-in issuer-country provider by name. extra is
// merged over DefaultBINTable for the bintable provider.
func BINProvider(name string, client *http.Client, extra map[string]string) (Provider, error) {
	switch name {
	case "bintable":
		p := NewStaticProvider(name, DefaultBINTable)
		for k, v := range extra {
			p.Put(k, v)
		}
		return p, nil
	case "binlist":
		return &HTTPProvider{ProviderName: name, URL: "https://lookup.binlist.net/%s", Field: "country.alpha2", Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown bin provider %q", name)
	}
}

var errInvalidBIN = errors.New("invalid bin")

// NormalizeBIN keeps the digits of a card prefix and returns the first six.
func NormalizeBIN(key string) (string, error) {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", errInvalidBIN
		}
	}
	digits := b.String()
	if len(digits) < 6 {
		return "", errInvalidBIN
	}
	return digits[:6], nil
}
