package signals

import (
	"regexp"
	"strconv"
	"strings"
)

// Action is the classified intent of a follow-up alert.
type Action string

const (
	ActionStopLossHit         Action = "stop_loss_hit"
	ActionPositionClosed      Action = "position_closed"
	ActionTakeProfit1         Action = "take_profit_1"
	ActionTakeProfit2         Action = "take_profit_2"
	ActionTP1AndBreakEven     Action = "tp1_and_break_even"
	ActionStopLossUpdate      Action = "stop_loss_update"
	ActionOrderCancelled      Action = "order_cancelled"
	ActionLimitOrderFilled    Action = "limit_order_filled"
	ActionLimitOrderNotFilled Action = "limit_order_not_filled"
	ActionUnknown             Action = "unknown"
)

// ParsedAlert is the outcome of classification: the action plus an optional
// explicit stop price. Price zero with ActionStopLossUpdate means "move to
// the effective entry" (breakeven).
type ParsedAlert struct {
	Action   Action  `json:"action"`
	Price    float64 `json:"price,omitempty"`
	Original string  `json:"original"`
}

// beWindow is how far after a "stopped"/"stops" keyword a breakeven marker
// may appear and still mean an SL move rather than a stop-out.
const beWindow = 24

var (
	slToPriceRe = regexp.MustCompile(`(?:stops?|sl)\s*(?:moved|moving|move)?\s*to\s+([0-9]+(?:\.[0-9]+)?)`)
	beMarkerRe  = regexp.MustCompile(`\b(?:be|b/e|break\s*even|breakeven)\b`)
)

// Classify maps alert free text onto one Action using keyword matching.
// The content often arrives wrapped in channel decorations (emoji, pipes);
// classification works on the lowercased text as-is.
func Classify(content string) ParsedAlert {
	lower := strings.ToLower(content)
	alert := ParsedAlert{Action: ActionUnknown, Original: content}

	hasTP1 := strings.Contains(lower, "tp1")
	hasBE := beMarkerRe.MatchString(lower)

	switch {
	case hasTP1 && hasBE:
		alert.Action = ActionTP1AndBreakEven

	case matchStopLossUpdate(lower):
		alert.Action = ActionStopLossUpdate
		if m := slToPriceRe.FindStringSubmatch(lower); m != nil {
			if p, err := strconv.ParseFloat(m[1], 64); err == nil {
				alert.Price = p
			}
		}

	case strings.Contains(lower, "stopped out") ||
		strings.Contains(lower, "stop loss hit") ||
		strings.Contains(lower, "sl hit") ||
		(strings.Contains(lower, "stop loss") && strings.Contains(lower, "hit")):
		alert.Action = ActionStopLossHit

	case strings.Contains(lower, "tp2"):
		alert.Action = ActionTakeProfit2

	case hasTP1:
		alert.Action = ActionTakeProfit1

	case strings.Contains(lower, "limit order filled") ||
		strings.Contains(lower, "order filled"):
		alert.Action = ActionLimitOrderFilled

	case strings.Contains(lower, "not filled") ||
		strings.Contains(lower, "limit order expired"):
		alert.Action = ActionLimitOrderNotFilled

	case strings.Contains(lower, "cancelled") || strings.Contains(lower, "canceled"):
		alert.Action = ActionOrderCancelled

	case strings.Contains(lower, "closed"):
		alert.Action = ActionPositionClosed

	case strings.Contains(lower, "stop loss") || strings.Contains(lower, "stopped"):
		// A bare stop mention without a BE marker is a stop-out.
		alert.Action = ActionStopLossHit
	}

	return alert
}

// matchStopLossUpdate recognizes SL moves: "stops moved to be", "sl to be",
// an explicit numeric target, or a breakeven marker within beWindow of a
// stop keyword ("stopped be" means moved, not hit).
func matchStopLossUpdate(lower string) bool {
	if slToPriceRe.MatchString(lower) {
		return true
	}
	if !beMarkerRe.MatchString(lower) {
		return false
	}
	for _, kw := range []string{"stops moved", "stop moved", "sl to", "stops to", "moved to", "stopped", "stops"} {
		idx := strings.Index(lower, kw)
		if idx < 0 {
			continue
		}
		rest := lower[idx+len(kw):]
		if len(rest) > beWindow {
			rest = rest[:beWindow]
		}
		if beMarkerRe.MatchString(rest) {
			return true
		}
	}
	return false
}
