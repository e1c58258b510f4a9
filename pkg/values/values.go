// Package values implements the comparison and addition rules used when
// authored content compares or combines loosely typed scalars (integers of any
// width, floats, decimals and strings).
package values

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrTypeMismatch is returned when two values have no common representation.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNull is returned by Compare when either side is nil.
	ErrNull = errors.New("null value")
)

// class is a rung on the promotion ladder.
type class int

const (
	classOther class = iota
	classUnsigned
	classSigned
	classFloat
	classDecimal
	classString
	classBool
)

func classify(v any) class {
	switch v.(type) {
	case uint64, uint:
		return classUnsigned
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return classSigned
	case float32, float64:
		return classFloat
	case decimal.Decimal:
		return classDecimal
	case string:
		return classString
	case bool:
		return classBool
	default:
		return classOther
	}
}

func isNumeric(c class) bool {
	return c == classUnsigned || c == classSigned || c == classFloat || c == classDecimal
}

// IsNumeric reports whether v is an integer, float or decimal value.
func IsNumeric(v any) bool {
	return isNumeric(classify(Normalize(v)))
}

// Normalize converts json.Number values into int64, uint64 or float64 using
// AutoNumeric. Every other value is returned unchanged.
func Normalize(v any) any {
	if n, ok := v.(json.Number); ok {
		return AutoNumeric(string(n))
	}
	return v
}

// Portable returns v in a form that comes back through encoding/json and
// Normalize as a number. Decimals would otherwise be written as strings.
func Portable(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}

// AutoNumeric converts s to an int64, then a uint64, then a float64, and falls
// back to s itself when none of those parse.
func AutoNumeric(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(t, 10, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}

// ParseBool interprets v as a boolean. Strings accept true/false (any case) and
// 1/0; integral numbers are true when non-zero.
func ParseBool(v any) (bool, error) {
	v = Normalize(v)
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, b)
	}
	switch classify(v) {
	case classSigned:
		return toInt64(v) != 0, nil
	case classUnsigned:
		return toUint64(v) != 0, nil
	}
	return false, fmt.Errorf("%w: %T is not a boolean", ErrTypeMismatch, v)
}

// Compare returns -1, 0 or +1 comparing a with b after promoting both to a
// common representation:
//
//  1. both unsigned 64-bit: compared as uint64
//  2. both integral (neither unsigned 64-bit): compared as int64
//  3. both numeric: compared as decimals
//  4. either a string: both formatted and compared as strings
//  5. both bools: false orders before true
//
// Any other pairing returns ErrTypeMismatch, and nil on either side ErrNull.
func Compare(a, b any) (int, error) {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return 0, ErrNull
	}

	ca, cb := classify(a), classify(b)
	switch {
	case ca == classUnsigned && cb == classUnsigned:
		return cmp.Compare(toUint64(a), toUint64(b)), nil
	case ca == classSigned && cb == classSigned:
		return cmp.Compare(toInt64(a), toInt64(b)), nil
	case isNumeric(ca) && isNumeric(cb):
		return compareNumeric(a, b), nil
	case ca == classString || cb == classString:
		return strings.Compare(Format(a), Format(b)), nil
	case ca == classBool && cb == classBool:
		return compareBool(a.(bool), b.(bool)), nil
	}
	return 0, fmt.Errorf("%w: cannot compare %T with %T", ErrTypeMismatch, a, b)
}

// Add combines a and b using the same ladder as Compare: numeric addition when
// both sides are numeric, concatenation when either side is a string. Integer
// overflow promotes the result to a decimal. A nil side yields the other value.
func Add(a, b any) (any, error) {
	a, b = Normalize(a), Normalize(b)
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}

	ca, cb := classify(a), classify(b)
	switch {
	case ca == classUnsigned && cb == classUnsigned:
		x, y := toUint64(a), toUint64(b)
		if sum := x + y; sum >= x {
			return sum, nil
		}
		return narrow(toDecimal(a).Add(toDecimal(b))), nil

	case ca == classSigned && cb == classSigned:
		x, y := toInt64(a), toInt64(b)
		sum := x + y
		if (x > 0 && y > 0 && sum < 0) || (x < 0 && y < 0 && sum >= 0) {
			return narrow(toDecimal(a).Add(toDecimal(b))), nil
		}
		return sum, nil

	case isNumeric(ca) && isNumeric(cb):
		if hasNonFinite(a, b) {
			return toFloat64(a) + toFloat64(b), nil
		}
		if ca == classDecimal || cb == classDecimal {
			return toDecimal(a).Add(toDecimal(b)), nil
		}
		if ca == classFloat || cb == classFloat {
			return toFloat64(a) + toFloat64(b), nil
		}
		return narrow(toDecimal(a).Add(toDecimal(b))), nil

	case ca == classString || cb == classString:
		return Format(a) + Format(b), nil
	}
	return nil, fmt.Errorf("%w: cannot add %T to %T", ErrTypeMismatch, b, a)
}

// Format renders v the way the string comparison path sees it.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case decimal.Decimal:
		return x.String()
	case json.Number:
		return x.String()
	}
	switch classify(v) {
	case classSigned:
		return strconv.FormatInt(toInt64(v), 10)
	case classUnsigned:
		return strconv.FormatUint(toUint64(v), 10)
	}
	return fmt.Sprint(v)
}

// ToInt converts an integral or integer-valued numeric v to int.
func ToInt(v any) (int, error) {
	v = Normalize(v)
	switch classify(v) {
	case classSigned:
		i := toInt64(v)
		if i < math.MinInt || i > math.MaxInt {
			break
		}
		return int(i), nil
	case classUnsigned:
		u := toUint64(v)
		if u > math.MaxInt {
			break
		}
		return int(u), nil
	case classFloat, classDecimal:
		if hasNonFinite(v) {
			break
		}
		d := toDecimal(v)
		if d.IsInteger() && d.BigInt().IsInt64() {
			return ToInt(d.BigInt().Int64())
		}
	case classString:
		if n := AutoNumeric(v.(string)); IsNumeric(n) {
			return ToInt(n)
		}
	}
	return 0, fmt.Errorf("%w: %v (%T) is not an int", ErrTypeMismatch, v, v)
}

func compareNumeric(a, b any) int {
	if hasNonFinite(a, b) {
		return cmp.Compare(toFloat64(a), toFloat64(b))
	}
	return toDecimal(a).Cmp(toDecimal(b))
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func hasNonFinite(vs ...any) bool {
	for _, v := range vs {
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}

// narrow returns d as an int64 or uint64 when it is an integer that fits.
func narrow(d decimal.Decimal) any {
	if d.IsInteger() {
		bi := d.BigInt()
		if bi.IsInt64() {
			return bi.Int64()
		}
		if bi.IsUint64() {
			return bi.Uint64()
		}
	}
	return d
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	}
	return 0
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint64:
		return n
	}
	return 0
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case decimal.Decimal:
		return n.InexactFloat64()
	}
	switch classify(v) {
	case classSigned:
		return float64(toInt64(v))
	case classUnsigned:
		return float64(toUint64(v))
	}
	return 0
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	}
	switch classify(v) {
	case classSigned:
		return decimal.NewFromInt(toInt64(v))
	case classUnsigned:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(toUint64(v)), 0)
	}
	return decimal.Zero
}
