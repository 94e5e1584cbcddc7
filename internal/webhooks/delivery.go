package webhooks

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// DeliveryID fingerprints a callback: the method, the source, every query or
// form parameter in key order, and the raw body.
func DeliveryID(method enums.PaymentMethod, cb payments.Callback) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(cb.Source))
	h.Write([]byte{0})
	h.Write([]byte(canonicalParams(cb.Params)))
	h.Write([]byte{0})
	h.Write(cb.Body)
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalParams(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		for _, value := range values[key] {
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
			b.WriteByte('&')
		}
	}
	return b.String()
}
