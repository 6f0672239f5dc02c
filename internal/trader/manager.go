package trader

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/database"
)

// Conflict resolutions for a new trade against existing live trades on the
// same symbol.
type Resolution string

const (
	ResolutionProceed Resolution = "PROCEED"
	ResolutionMerge   Resolution = "MERGE"
	ResolutionReplace Resolution = "REPLACE"
	ResolutionReject  Resolution = "REJECT"
)

// Conflict policies, from configuration.
const (
	PolicyMerge   = "MERGE"
	PolicyReplace = "REPLACE"
	PolicyReject  = "REJECT"
)

// Decision is the position manager's verdict for one incoming trade.
type Decision struct {
	Resolution Resolution
	// Primary is the existing live trade involved: the merge target for
	// MERGE, the trade to close first for REPLACE.
	Primary *database.Trade
	Reason  string
}

// LiveTradeSource is the slice of the repository the manager reads.
type LiveTradeSource interface {
	GetLiveTradesForSymbol(ctx context.Context, coinSymbol string) ([]*database.Trade, error)
}

// PositionManager resolves conflicts between an incoming trade and existing
// live trades on the same symbol. It holds no state of its own; every
// decision reads fresh rows.
type PositionManager struct {
	repo              LiveTradeSource
	sameSidePolicy    string
	oppositePolicy    string
	maxPositionTrades int
	logger            zerolog.Logger
}

// NewPositionManager creates a manager with the configured policies. Policy
// values arrive lowercase from configuration and are normalized here.
func NewPositionManager(repo LiveTradeSource, sameSide, opposite string, maxPositionTrades int, logger zerolog.Logger) *PositionManager {
	if maxPositionTrades < 1 {
		maxPositionTrades = 1
	}
	return &PositionManager{
		repo:              repo,
		sameSidePolicy:    strings.ToUpper(sameSide),
		oppositePolicy:    strings.ToUpper(opposite),
		maxPositionTrades: maxPositionTrades,
		logger:            logger.With().Str("component", "position_manager").Logger(),
	}
}

// Resolve inspects live trades for the coin symbol and decides how the new
// trade may proceed. MERGE wins the same-side tie-break while the symbol has
// fewer live trades than the configured maximum.
func (pm *PositionManager) Resolve(ctx context.Context, coinSymbol, positionType string) (*Decision, error) {
	live, err := pm.repo.GetLiveTradesForSymbol(ctx, coinSymbol)
	if err != nil {
		return nil, fmt.Errorf("inspecting live trades: %w", err)
	}
	if len(live) == 0 {
		return &Decision{Resolution: ResolutionProceed}, nil
	}

	existing := live[0]
	sameSide := existing.SignalType == positionType

	if sameSide {
		if pm.sameSidePolicy == PolicyMerge && len(live) < pm.maxPositionTrades {
			pm.logger.Info().Str("symbol", coinSymbol).Int64("primary", existing.ID).
				Msg("same-side conflict resolved as merge")
			return &Decision{
				Resolution: ResolutionMerge,
				Primary:    existing,
				Reason:     fmt.Sprintf("same-side merge into trade %d", existing.ID),
			}, nil
		}
		return &Decision{
			Resolution: ResolutionReject,
			Primary:    existing,
			Reason:     fmt.Sprintf("same-side position already open (trade %d)", existing.ID),
		}, nil
	}

	if pm.oppositePolicy == PolicyReplace {
		pm.logger.Info().Str("symbol", coinSymbol).Int64("existing", existing.ID).
			Msg("opposite-side conflict resolved as replace")
		return &Decision{
			Resolution: ResolutionReplace,
			Primary:    existing,
			Reason:     fmt.Sprintf("replacing opposite-side trade %d", existing.ID),
		}, nil
	}
	return &Decision{
		Resolution: ResolutionReject,
		Primary:    existing,
		Reason:     fmt.Sprintf("opposite-side position already open (trade %d)", existing.ID),
	}, nil
}
