package signals

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Action
	}{
		{"stopped out", "BTC stopped out 🔴", ActionStopLossHit},
		{"sl hit", "ETH | SL hit", ActionStopLossHit},
		{"stop loss hit wording", "stop loss has been hit on SOL", ActionStopLossHit},
		{"bare stop mention", "stopped on HYPE", ActionStopLossHit},
		{"closed", "position closed in profit ✅", ActionPositionClosed},
		{"tp1", "TP1 reached 🎯", ActionTakeProfit1},
		{"tp2", "TP2 smashed, congrats", ActionTakeProfit2},
		{"tp1 and be", "TP1 hit, stops moved to BE", ActionTP1AndBreakEven},
		{"tp1 and breakeven spelled out", "tp1 done, move stops to break even", ActionTP1AndBreakEven},
		{"stops to be", "stops moved to be", ActionStopLossUpdate},
		{"sl to be", "SL to b/e now", ActionStopLossUpdate},
		{"stopped be window", "stopped be", ActionStopLossUpdate},
		{"numeric sl move", "stops moved to 31.2", ActionStopLossUpdate},
		{"sl to numeric", "sl to 104.5", ActionStopLossUpdate},
		{"cancelled", "limit order cancelled", ActionOrderCancelled},
		{"filled", "limit order filled on INJ", ActionLimitOrderFilled},
		{"not filled", "order not filled, closing signal", ActionLimitOrderNotFilled},
		{"unknown", "gm everyone", ActionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.content)
			if got.Action != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.content, got.Action, tt.want)
			}
		})
	}
}

func TestClassifyNumericStopPrice(t *testing.T) {
	got := Classify("stops moved to 31.2")
	if got.Action != ActionStopLossUpdate {
		t.Fatalf("action = %s, want stop_loss_update", got.Action)
	}
	if got.Price != 31.2 {
		t.Errorf("price = %v, want 31.2", got.Price)
	}
}

// A breakeven move carries no explicit price; zero means "move to entry".
func TestClassifyBreakevenHasNoPrice(t *testing.T) {
	got := Classify("stops moved to be")
	if got.Action != ActionStopLossUpdate {
		t.Fatalf("action = %s, want stop_loss_update", got.Action)
	}
	if got.Price != 0 {
		t.Errorf("price = %v, want 0", got.Price)
	}
}

// A breakeven marker far from the stop keyword does not turn a stop-out
// into an SL move.
func TestClassifyStopOutWithDistantBEMarker(t *testing.T) {
	got := Classify("stopped out on this one, next entry could be around 30")
	if got.Action != ActionStopLossHit {
		t.Errorf("action = %s, want stop_loss_hit", got.Action)
	}
}

func TestClassifyPreservesOriginal(t *testing.T) {
	content := "TP1 reached 🎯"
	if got := Classify(content); got.Original != content {
		t.Errorf("original = %q, want %q", got.Original, content)
	}
}
