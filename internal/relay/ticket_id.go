package relay

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// randomSpace bounds the random component to five base36 digits.
const randomSpace = 36 * 36 * 36 * 36 * 36

// NewTicketID returns a compact, human-displayable id: base36 millis, a dash,
// and five random base36 digits, upper-cased (e.g. "LX3K9Q2A-0F4ZQ").
func NewTicketID(now time.Time) string {
	u := uuid.New()
	random := binary.BigEndian.Uint64(u[:8]) % randomSpace

	ts := strconv.FormatInt(now.UnixMilli(), 36)
	rnd := strconv.FormatUint(random, 36)
	if pad := 5 - len(rnd); pad > 0 {
		rnd = strings.Repeat("0", pad) + rnd
	}
	return strings.ToUpper(ts + "-" + rnd)
}
