package fraud

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf16"

	"github.com/Loofy147/Lsp/internal/domain"
)

// Fingerprint hashes the stable device attributes of a request.
// Missing attributes hash as empty strings.
func Fingerprint(rc *domain.RequestContext) string {
	sum := sha256.Sum256(fingerprintJSON(rc))
	return hex.EncodeToString(sum[:])
}

// fingerprintJSON renders the device attributes in the canonical form
// {"screen_resolution": ..., "timezone": ..., "user_agent": ...}: keys
// sorted, ", " and ": " separators, no HTML escaping and every non-ASCII
// rune written as \uXXXX (surrogate pairs above the BMP).
func fingerprintJSON(rc *domain.RequestContext) []byte {
	if rc == nil {
		rc = &domain.RequestContext{}
	}
	fields := []struct{ key, value string }{
		{"screen_resolution", rc.ScreenResolution},
		{"timezone", rc.Timezone},
		{"user_agent", rc.UserAgent},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		writeASCIIString(&buf, f.key)
		buf.WriteString(": ")
		writeASCIIString(&buf, f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeASCIIString(buf *bytes.Buffer, s string) {
	var quoted bytes.Buffer
	enc := json.NewEncoder(&quoted)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)

	for _, r := range string(bytes.TrimSuffix(quoted.Bytes(), []byte("\n"))) {
		switch {
		case r < 0x80:
			buf.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(buf, `\u%04x`, r)
		}
	}
}
