package identity

import (
	"strconv"
	"strings"
)

// ListingID extracts the numeric listing id from a listing URL such as
// https://auto.ria.com/uk/auto_bmw_x5_38012345.html. The id is the last
// "_"-separated segment with any extension cut off.
func ListingID(listingURL string) (int64, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(listingURL), "/")
	if trimmed == "" {
		return 0, false
	}

	tail := trimmed[strings.LastIndex(trimmed, "_")+1:]
	if dot := strings.Index(tail, "."); dot >= 0 {
		tail = tail[:dot]
	}

	id, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
