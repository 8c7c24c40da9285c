package imap

import (
	"strconv"
	"strings"
	"time"
)

// searchDateFormat is the RFC 3501 date-only form, e.g. "1-Feb-1994".
const searchDateFormat = "2-Jan-2006"

type critKind uint8

const (
	critFlag critKind = iota + 1 // no-arg flag test: UNSEEN, DELETED, ...
	critString                   // key + string argument: FROM, SUBJECT, BODY, TEXT, ...
	critHeader                   // HEADER field value
	critDate                     // key + date argument: SINCE, BEFORE, SENTSINCE, ...
	critNumber                   // key + number: LARGER, SMALLER
	critSet                      // key + message set: UID 1:5,9
	critExt                      // extension key with optional raw string argument
	critNot
	critOr
)

// Criterion is one search term. Criteria are composed into an ordered
// sequence that the wire format ANDs together; Not and Or build compound
// terms. Construct values with the package functions below; the zero
// Criterion is invalid.
type Criterion struct {
	kind critKind
	key  string
	str  string
	date time.Time
	num  int64
	sub  []Criterion
}

// Flag builds a no-argument flag test such as Flag("UNSEEN") or
// Flag("DELETED").
func Flag(name string) Criterion {
	return Criterion{kind: critFlag, key: strings.ToUpper(name)}
}

// Match builds a string-match term, e.g. Match("FROM", "a@b.com").
func Match(key, value string) Criterion {
	return Criterion{kind: critString, key: strings.ToUpper(key), str: value}
}

// Header builds a HEADER field test, e.g. Header("Message-ID", "<x@y>").
func Header(field, value string) Criterion {
	return Criterion{kind: critHeader, key: field, str: value}
}

// Since matches messages received on or after the date (time of day is
// ignored by the wire format).
func Since(t time.Time) Criterion { return Criterion{kind: critDate, key: "SINCE", date: t} }

// Before matches messages received before the date.
func Before(t time.Time) Criterion { return Criterion{kind: critDate, key: "BEFORE", date: t} }

// On matches messages received on the date.
func On(t time.Time) Criterion { return Criterion{kind: critDate, key: "ON", date: t} }

// SentSince matches on the Date: header instead of the internal date.
func SentSince(t time.Time) Criterion { return Criterion{kind: critDate, key: "SENTSINCE", date: t} }

// SentBefore matches on the Date: header instead of the internal date.
func SentBefore(t time.Time) Criterion { return Criterion{kind: critDate, key: "SENTBEFORE", date: t} }

// Larger matches messages strictly larger than n bytes.
func Larger(n int64) Criterion { return Criterion{kind: critNumber, key: "LARGER", num: n} }

// Smaller matches messages strictly smaller than n bytes.
func Smaller(n int64) Criterion { return Criterion{kind: critNumber, key: "SMALLER", num: n} }

// UIDSet matches messages whose UID is in the set, e.g. UIDSet("1:5,9").
func UIDSet(set string) Criterion { return Criterion{kind: critSet, key: "UID", str: set} }

// SeqSet matches messages by sequence number set.
func SeqSet(set string) Criterion { return Criterion{kind: critSet, key: "", str: set} }

// Raw builds an extension criterion: the key is emitted verbatim and the
// value, when non-empty, is passed through unmodified apart from
// quoted/literal encoding. This is how vendor search keys like X-GM-RAW are
// expressed.
func Raw(key, value string) Criterion {
	return Criterion{kind: critExt, key: key, str: value}
}

// Not negates a criterion.
func Not(c Criterion) Criterion {
	return Criterion{kind: critNot, sub: []Criterion{c}}
}

// Or matches messages satisfying either criterion.
func Or(a, b Criterion) Criterion {
	return Criterion{kind: critOr, sub: []Criterion{a, b}}
}

// Compile renders an ordered criteria sequence into a single SEARCH
// argument string, criteria space-joined (the wire format ANDs them). An
// empty sequence is a ValidationError.
func Compile(criteria []Criterion) (string, error) {
	if len(criteria) == 0 {
		return "", validationErrorf("search requires at least one criterion")
	}
	parts := make([]string, 0, len(criteria))
	for _, c := range criteria {
		s, err := c.compile()
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), nil
}

func (c Criterion) compile() (string, error) {
	switch c.kind {
	case critFlag:
		if c.key == "" {
			return "", validationErrorf("flag criterion requires a name")
		}
		return c.key, nil
	case critString:
		if c.key == "" {
			return "", validationErrorf("string criterion requires a key")
		}
		return c.key + " " + encodeAstring(c.str), nil
	case critHeader:
		if c.key == "" {
			return "", validationErrorf("header criterion requires a field name")
		}
		return "HEADER " + encodeAstring(c.key) + " " + encodeAstring(c.str), nil
	case critDate:
		if c.date.IsZero() {
			return "", validationErrorf("%s requires a date", c.key)
		}
		return c.key + " " + c.date.Format(searchDateFormat), nil
	case critNumber:
		if c.num < 0 {
			return "", validationErrorf("%s requires a non-negative size", c.key)
		}
		return c.key + " " + strconv.FormatInt(c.num, 10), nil
	case critSet:
		if c.str == "" {
			return "", validationErrorf("message set criterion requires a set")
		}
		if c.key == "" {
			return c.str, nil
		}
		return c.key + " " + c.str, nil
	case critExt:
		if c.key == "" {
			return "", validationErrorf("extension criterion requires a key")
		}
		if c.str == "" {
			return c.key, nil
		}
		return c.key + " " + encodeAstring(c.str), nil
	case critNot:
		inner, err := c.sub[0].compile()
		if err != nil {
			return "", err
		}
		// Compound operands need parenthesizing so NOT binds to the whole term.
		if c.sub[0].kind == critOr || c.sub[0].kind == critNot {
			inner = "(" + inner + ")"
		}
		return "NOT " + inner, nil
	case critOr:
		a, err := c.sub[0].compile()
		if err != nil {
			return "", err
		}
		b, err := c.sub[1].compile()
		if err != nil {
			return "", err
		}
		return "OR " + orOperand(c.sub[0], a) + " " + orOperand(c.sub[1], b), nil
	}
	return "", validationErrorf("invalid criterion")
}

// orOperand wraps multi-token operands of OR that the grammar would
// otherwise split into separate criteria.
func orOperand(c Criterion, compiled string) string {
	switch c.kind {
	case critOr, critNot:
		return "(" + compiled + ")"
	}
	return compiled
}
