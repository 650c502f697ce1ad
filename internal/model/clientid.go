package model

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// MaxClientOrderIDLen is the venue limit every generated id must respect.
const MaxClientOrderIDLen = 36

// ExitKind distinguishes grid orders from take-profit/stop-loss orders in
// the client-order-id namespace. The two namespaces are disjoint by the
// fixed "-TP-"/"-SL-" substrings.
type ExitKind int

const (
	KindGrid ExitKind = iota
	KindTP
	KindSL
)

func (k ExitKind) segment() string {
	switch k {
	case KindTP:
		return "TP"
	case KindSL:
		return "SL"
	default:
		return ""
	}
}

// ClientOrderId is the parsed, structured form of a venue client-order id.
type ClientOrderId struct {
	Strategy    string
	Kind        ExitKind
	Side        Side
	Level       int
	TimestampMs int64
	Counter     int64
	Attempt     int
}

var globalCounter int64

// NextCounter returns the next value of the process-global, atomically
// incremented counter backing id uniqueness.
func NextCounter() int64 {
	return atomic.AddInt64(&globalCounter, 1)
}

// FormatClientOrderID renders cid per the grammar:
//
//	{strategy}-{sideAbbrev}{level:02}-{tsMs}-{ctr}           (grid orders)
//	{strategy}-{TP|SL}-{sideAbbrev}{level:02}-{tsMs}-{ctr}   (exit orders)
//
// both optionally suffixed with "-R{attempt}". Timestamp and counter are
// base-36 encoded to keep the common case short; if the result still
// exceeds MaxClientOrderIDLen, the timestamp segment is compressed before
// the whole string is truncated as a last resort.
func FormatClientOrderID(cid ClientOrderId) string {
	sideLevel := fmt.Sprintf("%s%02d", cid.Side.Abbrev(), cid.Level)
	tsSeg := strconv.FormatInt(cid.TimestampMs, 36)
	ctrSeg := strconv.FormatInt(cid.Counter, 36)

	build := func(ts string) string {
		parts := []string{cid.Strategy}
		if seg := cid.Kind.segment(); seg != "" {
			parts = append(parts, seg)
		}
		parts = append(parts, sideLevel, ts, ctrSeg)
		id := strings.Join(parts, "-")
		if cid.Attempt > 0 {
			id = fmt.Sprintf("%s-R%d", id, cid.Attempt)
		}
		return id
	}

	id := build(tsSeg)
	for len(id) > MaxClientOrderIDLen && len(tsSeg) > 1 {
		tsSeg = tsSeg[:len(tsSeg)-1]
		id = build(tsSeg)
	}
	if len(id) > MaxClientOrderIDLen {
		id = id[:MaxClientOrderIDLen]
	}
	return id
}

// ParseClientOrderID reverses FormatClientOrderID. Ids that do not match
// the grammar (foreign prefixes, malformed segments) return ok=false so
// callers can treat them as unmatched/unparseable rather than erroring.
func ParseClientOrderID(s string) (ClientOrderId, bool) {
	fields := strings.Split(s, "-")
	if len(fields) < 4 {
		return ClientOrderId{}, false
	}

	cid := ClientOrderId{Strategy: fields[0]}
	idx := 1

	switch fields[idx] {
	case "TP":
		cid.Kind = KindTP
		idx++
	case "SL":
		cid.Kind = KindSL
		idx++
	}

	if idx >= len(fields) {
		return ClientOrderId{}, false
	}
	sideLevel := fields[idx]
	idx++
	if len(sideLevel) < 3 {
		return ClientOrderId{}, false
	}
	switch sideLevel[0] {
	case 'L':
		cid.Side = Long
	case 'S':
		cid.Side = Short
	default:
		return ClientOrderId{}, false
	}
	level, err := strconv.Atoi(sideLevel[1:])
	if err != nil {
		return ClientOrderId{}, false
	}
	cid.Level = level

	if idx >= len(fields) {
		return ClientOrderId{}, false
	}
	tsMs, err := strconv.ParseInt(fields[idx], 36, 64)
	if err != nil {
		return ClientOrderId{}, false
	}
	cid.TimestampMs = tsMs
	idx++

	if idx >= len(fields) {
		return ClientOrderId{}, false
	}
	counter, err := strconv.ParseInt(fields[idx], 36, 64)
	if err != nil {
		return ClientOrderId{}, false
	}
	cid.Counter = counter
	idx++

	if idx < len(fields) {
		rest := fields[idx]
		if !strings.HasPrefix(rest, "R") {
			return ClientOrderId{}, false
		}
		attempt, err := strconv.Atoi(rest[1:])
		if err != nil {
			return ClientOrderId{}, false
		}
		cid.Attempt = attempt
		idx++
	}

	if idx != len(fields) {
		return ClientOrderId{}, false
	}
	return cid, true
}

// IsExitID reports whether the formatted id belongs to the exit namespace,
// matching purely on the fixed substrings per the data-model grammar.
func IsExitID(s string) bool {
	return strings.Contains(s, "-TP-") || strings.Contains(s, "-SL-")
}
