package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const bookingNumberAttempts = 5

// newBookingNumber returns BK-YYYYMMDD-XXXXXX with a random upper-case suffix.
func newBookingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return "BK-" + now.UTC().Format("20060102") + "-" + suffix
}
