// Package discordid validates Discord snowflake identifiers received from
// untrusted input (headers, query parameters, JSON bodies).
//
// A value is accepted when its decimal string form is 15 to 19 digits without
// a leading zero and fits into a signed 64-bit integer.
package discordid

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Leading zeros are rejected so String round-trips the accepted input.
var snowflakePattern = regexp.MustCompile(`^[1-9][0-9]{14,18}$`)

// discordEpoch is the first millisecond of 2015 in Unix time.
const discordEpoch = 1420070400000

// ID is a validated Discord snowflake.
type ID int64

// Int64 returns the raw integer value.
func (id ID) Int64() int64 { return int64(id) }

// String returns the decimal form.
func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id == 0 }

// Snowflake converts to the bwmarrin snowflake type.
func (id ID) Snowflake() snowflake.ID { return snowflake.ID(id) }

// CreatedAt returns the creation time encoded in the snowflake's timestamp
// bits. snowflake.ID.Time adds the package's own epoch, which is swapped for
// Discord's here.
func (id ID) CreatedAt() time.Time {
	ms := id.Snowflake().Time() - snowflake.Epoch + discordEpoch
	return time.UnixMilli(ms).UTC()
}

// MarshalJSON encodes the ID as a JSON string so 64-bit values survive
// JavaScript clients.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(id.String())), nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(b []byte) error {
	v, err := FromJSON("", b)
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Parse validates a decimal string. field names the offending input in errors.
func Parse(field, raw string) (ID, error) {
	if !snowflakePattern.MatchString(raw) {
		return 0, &ValidationError{Field: field, Value: raw}
	}
	sf, err := snowflake.ParseString(raw)
	if err != nil {
		// 19 digits may still overflow int64.
		return 0, &ValidationError{Field: field, Value: raw}
	}
	return ID(sf.Int64()), nil
}

// FromAny converts a decoded value to its decimal string form and validates it.
func FromAny(field string, v any) (ID, error) {
	switch x := v.(type) {
	case ID:
		return Parse(field, x.String())
	case string:
		return Parse(field, x)
	case json.Number:
		return Parse(field, x.String())
	case int64:
		return Parse(field, strconv.FormatInt(x, 10))
	case int:
		return Parse(field, strconv.Itoa(x))
	case uint64:
		return Parse(field, strconv.FormatUint(x, 10))
	case float64:
		return Parse(field, strconv.FormatFloat(x, 'f', -1, 64))
	default:
		return 0, &ValidationError{Field: field}
	}
}

// FromJSON validates a raw JSON value (string or number).
func FromJSON(field string, raw []byte) (ID, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, &ValidationError{Field: field, Value: string(raw)}
	}
	return FromAny(field, v)
}
