// Package signals turns inbound signal records into trade-lifecycle
// operations: parsing structured signals, classifying follow-up alerts, and
// routing both to the trade coordinator.
package signals

import (
	"fmt"
	"strconv"
	"strings"
)

// Position directions.
const (
	Long  = "LONG"
	Short = "SHORT"
)

// Signal is the parsed intent of one initial trading signal.
type Signal struct {
	CoinSymbol    string    `json:"coin_symbol"`
	PositionType  string    `json:"position_type"`
	OrderType     string    `json:"order_type"` // MARKET or LIMIT
	EntryPrices   []float64 `json:"entry_prices"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfits   []float64 `json:"take_profits,omitempty"`
	QtyMultiplier int       `json:"quantity_multiplier,omitempty"`
}

// EntryPrice selects the working entry from a 1- or 2-value range: the bound
// nearest the market that still respects the direction. For a limit LONG
// that is the upper bound, for a SHORT the lower.
func (s *Signal) EntryPrice() float64 {
	if len(s.EntryPrices) == 0 {
		return 0
	}
	if len(s.EntryPrices) == 1 {
		return s.EntryPrices[0]
	}
	lo, hi := s.EntryPrices[0], s.EntryPrices[1]
	if lo > hi {
		lo, hi = hi, lo
	}
	if s.PositionType == Short {
		return lo
	}
	return hi
}

// IsLong reports the direction.
func (s *Signal) IsLong() bool { return s.PositionType != Short }

// ParseStructured decodes the fixed pipe-delimited structured form, e.g.
//
//	LIMIT|HYPE|Entry:|32.2-31.5|SL:|30.7
//
// Tokens are position-independent: MARKET/LIMIT and LONG/SHORT are
// recognized anywhere, "Entry:", "SL:" and "TP:" label the following token.
// content supplies the direction when the structured form omits it.
func ParseStructured(structured, content string) (*Signal, error) {
	if strings.TrimSpace(structured) == "" {
		return nil, fmt.Errorf("empty structured signal")
	}

	sig := &Signal{OrderType: "MARKET"}
	tokens := strings.Split(structured, "|")
	for i := 0; i < len(tokens); i++ {
		tok := strings.TrimSpace(tokens[i])
		if tok == "" {
			continue
		}
		switch upper := strings.ToUpper(strings.TrimSuffix(tok, ":")); upper {
		case "MARKET", "LIMIT":
			sig.OrderType = upper
		case "LONG", "SHORT":
			sig.PositionType = upper
		case "ENTRY", "ENTRIES":
			if i+1 < len(tokens) {
				i++
				prices, err := parsePriceList(tokens[i])
				if err != nil {
					return nil, fmt.Errorf("entry prices: %w", err)
				}
				// An entry range has at most two bounds.
				if len(prices) > 2 {
					prices = prices[:2]
				}
				sig.EntryPrices = prices
			}
		case "SL", "STOP", "STOPLOSS":
			if i+1 < len(tokens) {
				i++
				p, err := parsePrice(tokens[i])
				if err != nil {
					return nil, fmt.Errorf("stop loss: %w", err)
				}
				sig.StopLoss = p
			}
		case "TP", "TPS", "TARGETS":
			if i+1 < len(tokens) {
				i++
				prices, err := parsePriceList(tokens[i])
				if err != nil {
					return nil, fmt.Errorf("take profits: %w", err)
				}
				sig.TakeProfits = prices
			}
		case "X", "MULT", "MULTIPLIER":
			if i+1 < len(tokens) {
				i++
				n, err := strconv.Atoi(strings.TrimSpace(tokens[i]))
				if err != nil || n < 1 {
					return nil, fmt.Errorf("invalid quantity multiplier %q", tokens[i])
				}
				sig.QtyMultiplier = n
			}
		default:
			if sig.CoinSymbol == "" && isCoinToken(tok) {
				sig.CoinSymbol = strings.ToUpper(tok)
			}
		}
	}

	if sig.CoinSymbol == "" {
		return nil, fmt.Errorf("no coin symbol in %q", structured)
	}
	if len(sig.EntryPrices) == 0 {
		return nil, fmt.Errorf("no entry prices in %q", structured)
	}
	if sig.PositionType == "" {
		sig.PositionType = directionFromContent(content)
	}
	return sig, nil
}

// directionFromContent falls back to the free-text content for LONG/SHORT.
func directionFromContent(content string) string {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "short") {
		return Short
	}
	return Long
}

func parsePriceList(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == ',' || r == '/' || r == ' '
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty price list %q", s)
	}
	prices := make([]float64, 0, len(fields))
	for _, f := range fields {
		p, err := parsePrice(f)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, nil
}

func parsePrice(s string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || p <= 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return p, nil
}

func isCoinToken(tok string) bool {
	if len(tok) < 2 || len(tok) > 12 {
		return false
	}
	for _, r := range tok {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	// Reject pure numbers, which are prices.
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return false
	}
	return true
}
