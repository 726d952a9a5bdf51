// Package utils provides common validation helpers.
package utils

import (
	"errors"
	"fmt"
)

// Error definitions for validation functions
var (
	ErrNoSymbols      = errors.New("zero symbols requested")
	ErrTooManySymbols = errors.New("too many symbols requested")
)

// maxSymbolLen bounds ticker symbol length, long enough for extended
// listings like "BRK.B".
const maxSymbolLen = 8

// ValidateSymbol validates a ticker symbol: 1-8 characters, uppercase
// letters, digits or a dot separator.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if len(symbol) > maxSymbolLen {
		return fmt.Errorf("symbol %q exceeds %d characters", symbol, maxSymbolLen)
	}
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '.' {
			continue
		}
		return fmt.Errorf("symbol %q contains invalid character %q", symbol, c)
	}
	return nil
}

// ValidateSymbols validates a symbol list and enforces the quantity limit.
func ValidateSymbols(symbols []string, maxAllowed int) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	if maxAllowed <= 0 {
		return fmt.Errorf("%w: max allowed must be positive, got %d",
			ErrTooManySymbols, maxAllowed)
	}
	if len(symbols) > maxAllowed {
		return fmt.Errorf("%w: requested %d symbols, maximum allowed %d",
			ErrTooManySymbols, len(symbols), maxAllowed)
	}
	for i, symbol := range symbols {
		if err := ValidateSymbol(symbol); err != nil {
			return fmt.Errorf("invalid symbol at index %d (%q): %w", i, symbol, err)
		}
	}
	return nil
}
