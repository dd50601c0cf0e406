// Package vpnkey extracts panel identifiers and location labels from raw VPN
// connection strings. Every helper is best-effort: malformed input yields an
// empty result, never an error.
package vpnkey

import "strings"

const (
	identifierPrefix = "AmegaVPN-"
	locationMarker   = "#AmegaVPN-vpn-"

	// UnknownLocation is returned for keys without a recognizable location token.
	UnknownLocation = "Unknown location"
)

var locations = map[string]string{
	"germany": "Germany",
	"bulgary": "Bulgaria",
	"austria": "Austria",
	"france":  "France",
}

// Parsed holds the values derived from a key string. Nil means undefined.
type Parsed struct {
	Identifier *string
	ID         *string
}

// Parse derives both panel identifiers from key.
func Parse(key string) Parsed {
	return Parsed{
		Identifier: Identifier(key),
		ID:         ClientID(key),
	}
}

// Identifier returns the text after the last '#', without the AmegaVPN- prefix.
func Identifier(key string) *string {
	i := strings.LastIndex(key, "#")
	if i < 0 {
		return nil
	}
	ident := strings.TrimPrefix(key[i+1:], identifierPrefix)
	if ident == "" {
		return nil
	}
	return &ident
}

// ClientID returns the text between the first "://" and the following '@'.
func ClientID(key string) *string {
	_, rest, ok := strings.Cut(key, "://")
	if !ok {
		return nil
	}
	id, _, ok := strings.Cut(rest, "@")
	if !ok || id == "" {
		return nil
	}
	return &id
}

// Location maps the token after "#AmegaVPN-vpn-" to a display name.
func Location(key string) string {
	_, rest, ok := strings.Cut(key, locationMarker)
	if !ok {
		return UnknownLocation
	}
	token, _, _ := strings.Cut(rest, "-")
	if name, ok := locations[strings.ToLower(token)]; ok {
		return name
	}
	return UnknownLocation
}

// Validate reports whether line looks like a connection string that can be
// stored: a scheme separator and no embedded whitespace.
func Validate(line string) bool {
	if line == "" || len(line) > 4096 {
		return false
	}
	if strings.ContainsAny(line, " \t\r\n") {
		return false
	}
	return strings.Contains(line, "://")
}
