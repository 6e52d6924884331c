package narrator

import (
	"strings"
)

// knownBases are tickers users commonly type without a quote asset.
var knownBases = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "BNB": true, "XRP": true,
	"ADA": true, "DOGE": true, "LINK": true, "AVAX": true, "DOT": true,
	"LTC": true, "TRX": true, "MATIC": true, "TON": true,
}

var quoteAssets = []string{"USDT", "BUSD", "USDC", "BTC", "ETH"}

// ExtractSymbols scans text for trading pairs. Bare base tickers such as
// "sol" resolve to their USDT pair. Returns deduplicated symbols in order of
// first mention.
func ExtractSymbols(text string) []string {
	upper := strings.ToUpper(text)
	words := strings.FieldsFunc(upper, func(r rune) bool {
		return !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})

	seen := make(map[string]bool)
	var result []string
	for _, w := range words {
		symbol, ok := resolveSymbol(w)
		if ok && !seen[symbol] {
			seen[symbol] = true
			result = append(result, symbol)
		}
	}
	return result
}

func resolveSymbol(word string) (string, bool) {
	if knownBases[word] {
		return word + "USDT", true
	}
	for _, q := range quoteAssets {
		base := strings.TrimSuffix(word, q)
		if base != word && knownBases[base] {
			return word, true
		}
	}
	return "", false
}
