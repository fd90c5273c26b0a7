package ir

import "fmt"

// Condition is a predicate over the condition codes set by Compare or
// BitTest.
type Condition uint8

const (
	Always Condition = iota
	Equal
	NotEqual
	SignedLess
	SignedLessOrEqual
	SignedGreater
	SignedGreaterOrEqual
	UnsignedLower
	UnsignedLowerOrSame
	UnsignedHigher
	UnsignedHigherOrSame
	Negative
	PositiveOrZero
	Overflow
	NoOverflow
)

var conditionNames = [...]string{
	Always:               "al",
	Equal:                "eq",
	NotEqual:             "ne",
	SignedLess:           "lt",
	SignedLessOrEqual:    "le",
	SignedGreater:        "gt",
	SignedGreaterOrEqual: "ge",
	UnsignedLower:        "lo",
	UnsignedLowerOrSame:  "ls",
	UnsignedHigher:       "hi",
	UnsignedHigherOrSame: "hs",
	Negative:             "mi",
	PositiveOrZero:       "pl",
	Overflow:             "vs",
	NoOverflow:           "vc",
}

var conditionNegations = [...]Condition{
	Always:               Always,
	Equal:                NotEqual,
	NotEqual:             Equal,
	SignedLess:           SignedGreaterOrEqual,
	SignedLessOrEqual:    SignedGreater,
	SignedGreater:        SignedLessOrEqual,
	SignedGreaterOrEqual: SignedLess,
	UnsignedLower:        UnsignedHigherOrSame,
	UnsignedLowerOrSame:  UnsignedHigher,
	UnsignedHigher:       UnsignedLowerOrSame,
	UnsignedHigherOrSame: UnsignedLower,
	Negative:             PositiveOrZero,
	PositiveOrZero:       Negative,
	Overflow:             NoOverflow,
	NoOverflow:           Overflow,
}

func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

// Negate returns the condition that holds exactly when c does not. Always
// stays Always.
func (c Condition) Negate() Condition {
	if int(c) < len(conditionNegations) {
		return conditionNegations[c]
	}
	return c
}

// ParseCondition is the inverse of Condition.String.
func ParseCondition(name string) (Condition, bool) {
	for i, n := range conditionNames {
		if n == name {
			return Condition(i), true
		}
	}
	return Always, false
}
