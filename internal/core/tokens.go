// Package core holds the FamilyBank domain model: jar categories, token
// arithmetic, allocation math, and the entities the ledger records.
//
// This file contains the token value type and parsing from decimal
// display-currency strings. All balance arithmetic runs on integer tokens
// to avoid floating-point drift.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// TokensPerUnit is the fixed conversion between internal tokens and the
// display currency: 10 tokens = 1 display unit.
const TokensPerUnit = 10

// Tokens is an integer count of the internal value unit.
type Tokens int64

func (t Tokens) Validate() error {
	if t <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Display returns the display-currency value as a float64 for formatting.
// Use tokens for calculations, never this.
func (t Tokens) Display() float64 {
	return float64(t) / TokensPerUnit
}

// ParseDecimalToTokens converts a decimal display-currency string to tokens
// with half-up rounding on the second decimal place.
//
// It accepts both dot (12.3) and comma (12,3) separators and only positive
// values. One fractional digit is significant (10 tokens per unit).
//
// Examples:
//
//	ParseDecimalToTokens("12.3")  -> 123, nil
//	ParseDecimalToTokens("12,3")  -> 123, nil
//	ParseDecimalToTokens("12.34") -> 123, nil (rounds down)
//	ParseDecimalToTokens("12.35") -> 124, nil (rounds up)
func ParseDecimalToTokens(s string) (Tokens, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / TokensPerUnit
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// First fractional digit is a whole token; half-up on the second.
	var fracTokens int64
	if len(fracPart) > 0 {
		fracTokens = int64(fracPart[0] - '0')
		if len(fracPart) > 1 && fracPart[1] >= '5' {
			fracTokens++
		}
	}
	tokens := iv*TokensPerUnit + fracTokens
	if tokens <= 0 {
		return 0, ErrInvalidAmount
	}
	return Tokens(tokens), nil
}
