package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const trackingPrefix = "ORD"

// NewTrackingNumber returns ORD-YYYYMMDD-XXXXXXXX. The suffix carries 32 random
// bits; the unique index is the final guard.
func NewTrackingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return trackingPrefix + "-" + now.UTC().Format("20060102") + "-" + suffix
}
