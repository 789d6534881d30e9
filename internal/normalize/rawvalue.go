package normalize

// rawKind tags the variant held by a RawValue.
type rawKind uint8

const (
	kindAbsent rawKind = iota
	kindText
	kindNumber
)

// RawValue is an extracted value that is either text, an already-numeric
// value, or absent.
type RawValue struct {
	kind rawKind
	text string
	num  float64
}

// Text wraps a string extracted from a page.
func Text(s string) RawValue { return RawValue{kind: kindText, text: s} }

// Number wraps a value that is already numeric.
func Number(f float64) RawValue { return RawValue{kind: kindNumber, num: f} }

// Absent is the value of a field no rule matched.
func Absent() RawValue { return RawValue{} }

// IsAbsent reports whether v carries no value.
func (v RawValue) IsAbsent() bool { return v.kind == kindAbsent }

// String returns the textual form of v, mainly for logging.
func (v RawValue) String() string {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		return formatFloat(v.num)
	default:
		return "<absent>"
	}
}
