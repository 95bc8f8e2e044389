package trips

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// Fingerprint identifies a physical trip: the same vendor reporting a pickup
// at the same instant and coordinate twice is a duplicate record. ok is false
// when vendor or pickup time is missing, since such rows never reach the
// duplicate check.
func Fingerprint(r Record) (fp string, ok bool) {
	if r.VendorID == nil || r.PickupTime == nil {
		return "", false
	}
	coord := func(p *float64) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatFloat(*p, 'f', 6, 64)
	}
	key := *r.VendorID + "|" +
		strconv.FormatInt(r.PickupTime.UnixNano(), 10) + "|" +
		coord(r.PickupLon) + "|" + coord(r.PickupLat)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]), true
}
