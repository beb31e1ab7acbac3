package identity

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const suffixLen = 9

// NewID returns "<prefix>_<unix ms>_<9 base36 chars>".
func NewID(prefix string, now time.Time) string {
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomSuffix()
}

// newFBP returns a browser id in the ad-network's "fb.1.<ms>.<random>" layout.
func newFBP(now time.Time) string {
	return "fb.1." + strconv.FormatInt(now.UnixMilli(), 10) + "." + randomSuffix()
}

func newFBC(now time.Time, fbclid string) string {
	return "fb.1." + strconv.FormatInt(now.UnixMilli(), 10) + "." + fbclid
}

func randomSuffix() string {
	var b strings.Builder
	for b.Len() < suffixLen {
		b.WriteString(strconv.FormatUint(rand.Uint64(), 36))
	}
	return b.String()[:suffixLen]
}
