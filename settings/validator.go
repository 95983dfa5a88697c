package settings

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// Kind tags the variant held by a Validator.
type Kind int

const (
	KindAlwaysValid Kind = iota
	KindDiscreteSet
	KindIntRange
	KindFloatRange
	KindDelimitedList
	KindNonNegativeInt
	KindURI
	KindComponentList
	KindFloatList
	KindLocale
	KindPulseValues
)

var kindNames = map[Kind]string{
	KindAlwaysValid:    "always_valid",
	KindDiscreteSet:    "discrete_set",
	KindIntRange:       "int_range",
	KindFloatRange:     "float_range",
	KindDelimitedList:  "delimited_list",
	KindNonNegativeInt: "non_negative_int",
	KindURI:            "uri",
	KindComponentList:  "component_list",
	KindFloatList:      "float_list",
	KindLocale:         "locale",
	KindPulseValues:    "pulse_values",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Validator describes the values accepted for a setting. The zero value
// accepts everything.
//
// Validators are advisory: callers consult them before writing, the registry
// never rejects a write because of them.
type Validator struct {
	kind         Kind
	values       []string
	minInt       int64
	maxInt       int64
	minFloat     decimal.Decimal
	maxFloat     decimal.Decimal
	delimiter    string
	allowEmpty   bool
	count        int
	requireClass bool
}

// AlwaysValid accepts any value.
func AlwaysValid() Validator {
	return Validator{kind: KindAlwaysValid}
}

// DiscreteSet accepts exactly one of the listed values.
func DiscreteSet(values ...string) Validator {
	return Validator{kind: KindDiscreteSet, values: append([]string(nil), values...)}
}

// Boolean accepts "0" and "1".
func Boolean() Validator {
	return DiscreteSet("0", "1")
}

// IntRange accepts 32-bit integers within [min, max].
func IntRange(min, max int64) Validator {
	return Validator{kind: KindIntRange, minInt: min, maxInt: max}
}

// Color accepts any 32-bit ARGB integer.
func Color() Validator {
	return IntRange(math.MinInt32, math.MaxInt32)
}

// FloatRange accepts decimal numbers within [min, max].
func FloatRange(min, max float64) Validator {
	return Validator{kind: KindFloatRange, minFloat: decimal.NewFromFloat(min), maxFloat: decimal.NewFromFloat(max)}
}

// DelimitedList accepts a delimiter separated list whose non-empty items are
// all part of the vocabulary. An empty list is accepted only with allowEmpty.
func DelimitedList(values []string, delimiter string, allowEmpty bool) Validator {
	return Validator{kind: KindDelimitedList, values: append([]string(nil), values...), delimiter: delimiter, allowEmpty: allowEmpty}
}

// NonNegativeInt accepts integers >= 0.
func NonNegativeInt() Validator {
	return Validator{kind: KindNonNegativeInt}
}

// URI accepts values that parse as a URI reference.
func URI() Validator {
	return Validator{kind: KindURI}
}

// ComponentList accepts a delimited list of non-empty entries. With
// requireClass every entry must be a flattened "package/class" component name.
func ComponentList(delimiter string, requireClass bool) Validator {
	return Validator{kind: KindComponentList, delimiter: delimiter, requireClass: requireClass}
}

// FloatList accepts exactly count delimited decimals, each within [min, max].
func FloatList(count int, delimiter string, min, max float64) Validator {
	return Validator{kind: KindFloatList, count: count, delimiter: delimiter, minFloat: decimal.NewFromFloat(min), maxFloat: decimal.NewFromFloat(max)}
}

// Locale accepts BCP 47 language tags.
func Locale() Validator {
	return Validator{kind: KindLocale}
}

// PulseValues accepts "package=color;on;off" entries separated by "|".
func PulseValues() Validator {
	return Validator{kind: KindPulseValues}
}

// Kind reports the variant of the validator.
func (v Validator) Kind() Kind {
	return v.kind
}

// Validate reports whether value is acceptable.
func (v Validator) Validate(value string) bool {
	switch v.kind {
	case KindAlwaysValid:
		return true
	case KindDiscreteSet:
		for _, allowed := range v.values {
			if allowed == value {
				return true
			}
		}
		return false
	case KindIntRange:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return false
		}
		return n >= v.minInt && n <= v.maxInt
	case KindFloatRange:
		return v.inFloatRange(value)
	case KindDelimitedList:
		return v.validateDelimitedList(value)
	case KindNonNegativeInt:
		n, err := strconv.ParseInt(value, 10, 32)
		return err == nil && n >= 0
	case KindURI:
		_, err := url.Parse(value)
		return err == nil
	case KindComponentList:
		return v.validateComponents(value)
	case KindFloatList:
		parts := strings.Split(value, v.delimiter)
		if len(parts) != v.count {
			return false
		}
		for _, part := range parts {
			if !v.inFloatRange(part) {
				return false
			}
		}
		return true
	case KindLocale:
		_, err := language.Parse(value)
		return err == nil
	case KindPulseValues:
		return validatePulseValues(value)
	default:
		return false
	}
}

func (v Validator) inFloatRange(value string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return d.GreaterThanOrEqual(v.minFloat) && d.LessThanOrEqual(v.maxFloat)
}

func (v Validator) validateDelimitedList(value string) bool {
	items := make(map[string]struct{})
	if value != "" {
		for _, item := range strings.Split(value, v.delimiter) {
			if item == "" {
				continue
			}
			items[item] = struct{}{}
		}
	}
	if len(items) == 0 {
		return v.allowEmpty
	}
	for _, allowed := range v.values {
		delete(items, allowed)
	}
	return len(items) == 0
}

func (v Validator) validateComponents(value string) bool {
	if value == "" {
		return true
	}
	for _, item := range strings.Split(value, v.delimiter) {
		if item == "" {
			return false
		}
		if !v.requireClass {
			continue
		}
		pkg, cls, ok := strings.Cut(item, "/")
		if !ok || pkg == "" || cls == "" {
			return false
		}
	}
	return true
}

func validatePulseValues(value string) bool {
	if value == "" {
		return true
	}
	for _, entry := range strings.Split(value, "|") {
		pkg, rest, ok := strings.Cut(entry, "=")
		if !ok || pkg == "" || strings.Contains(rest, "=") {
			return false
		}
		fields := strings.Split(rest, ";")
		if len(fields) != 3 {
			return false
		}
		for _, field := range fields {
			if _, err := strconv.ParseInt(field, 10, 32); err != nil {
				return false
			}
		}
	}
	return true
}
