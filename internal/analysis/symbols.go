package analysis

import (
	"strings"
)

// Supported Indian exchanges and their market-data symbol suffixes.
const (
	ExchangeNSE = "NSE"
	ExchangeBSE = "BSE"

	suffixNSE = ".NS"
	suffixBSE = ".BO"
)

// NormalizeSymbol validates a raw ticker and converts it to the provider
// symbol format: RELIANCE + NSE -> RELIANCE.NS, RELIANCE + BSE -> RELIANCE.BO.
// Index symbols (^NSEI, ^BSESN) pass through unchanged. An empty exchange
// defaults to NSE. A suffixed symbol determines its own exchange; an
// explicit exchange that contradicts the suffix is rejected.
func NormalizeSymbol(symbol, exchange string) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))

	explicitExchange := exchange != ""
	if !explicitExchange {
		exchange = ExchangeNSE
	}
	if exchange != ExchangeNSE && exchange != ExchangeBSE {
		return "", "", &ValidationError{Field: "exchange", Value: exchange, Reason: "must be NSE or BSE"}
	}

	if symbol == "" {
		return "", "", &ValidationError{Field: "symbol", Value: symbol, Reason: "must not be empty"}
	}
	if !validTicker(symbol) {
		return "", "", &ValidationError{Field: "symbol", Value: symbol, Reason: "contains characters outside the permitted ticker alphabet"}
	}

	// Indices are exchange-independent and already fully qualified
	if strings.HasPrefix(symbol, "^") {
		return symbol, exchange, nil
	}

	// An existing suffix is authoritative for the exchange. A caller that
	// names the other exchange explicitly is contradicting itself.
	if strings.HasSuffix(symbol, suffixNSE) || strings.HasSuffix(symbol, suffixBSE) {
		suffixExchange := ExchangeNSE
		if strings.HasSuffix(symbol, suffixBSE) {
			suffixExchange = ExchangeBSE
		}
		if explicitExchange && exchange != suffixExchange {
			return "", "", &ValidationError{Field: "symbol", Value: symbol, Reason: "suffix does not match exchange " + exchange}
		}
		return symbol, suffixExchange, nil
	}

	if exchange == ExchangeBSE {
		return symbol + suffixBSE, exchange, nil
	}
	return symbol + suffixNSE, exchange, nil
}

// validTicker checks the permitted ticker alphabet: letters, digits,
// '.', '-', '&' (M&M, BAJAJ-AUTO), and a single leading '^' for indices.
func validTicker(symbol string) bool {
	for i, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '&':
		case r == '^' && i == 0:
		default:
			return false
		}
	}
	return true
}

// IsIndex reports whether a normalized symbol refers to a market index.
func IsIndex(symbol string) bool {
	return strings.HasPrefix(symbol, "^")
}
