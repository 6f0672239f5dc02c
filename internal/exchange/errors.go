package exchange

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureKind partitions venue errors. Only the first six kinds may
// transition a trade to a terminal FAILED/UNFILLED state; PermissionDenied
// from a status probe must never overwrite a successful placement.
type FailureKind string

const (
	FailureMarginInsufficient      FailureKind = "MARGIN_INSUFFICIENT"
	FailureQtyOutOfBounds          FailureKind = "QTY_OUT_OF_BOUNDS"
	FailureNotionalTooSmall        FailureKind = "NOTIONAL_TOO_SMALL"
	FailureWouldImmediatelyTrigger FailureKind = "WOULD_IMMEDIATELY_TRIGGER"
	FailureSymbolUnsupported       FailureKind = "SYMBOL_UNSUPPORTED"
	FailurePriceOutOfRange         FailureKind = "PRICE_OUT_OF_RANGE"
	FailurePermissionDenied        FailureKind = "PERMISSION_DENIED"
	FailureTransient               FailureKind = "TRANSIENT"
)

// Terminal reports whether this kind of failure moves a trade to a terminal
// state when it occurs during placement preflight or submission.
func (k FailureKind) Terminal() bool {
	switch k {
	case FailureMarginInsufficient, FailureQtyOutOfBounds, FailureNotionalTooSmall,
		FailureWouldImmediatelyTrigger, FailureSymbolUnsupported, FailurePriceOutOfRange:
		return true
	}
	return false
}

// Sentinel errors used for control flow across venue implementations.
var (
	ErrSymbolUnsupported   = errors.New("symbol not supported on venue")
	ErrTPSLModeUnsupported = errors.New("position-mode TP/SL not supported on venue")
	ErrOrderNotFound       = errors.New("order not found on venue")
	ErrNoPosition          = errors.New("no live position on venue")
)

// VenueError is a venue-reported API error, preserved verbatim alongside its
// classification. The raw body stays available for the audit fields.
type VenueError struct {
	Venue      string
	Code       int
	Message    string
	HTTPStatus int
	Body       []byte
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s API error %d (http %d): %s", e.Venue, e.Code, e.HTTPStatus, e.Message)
}

// Kind classifies the error into the placement failure taxonomy.
// Codes follow Binance futures error numbering; KuCoin errors are mapped to
// the same taxonomy by its adapter before construction.
func (e *VenueError) Kind() FailureKind {
	switch e.Code {
	case -2019: // Margin is insufficient
		return FailureMarginInsufficient
	case -1013, -4003, -4004, -4005: // quantity below/above filter bounds
		return FailureQtyOutOfBounds
	case -4164: // notional below MIN_NOTIONAL
		return FailureNotionalTooSmall
	case -2021: // order would immediately trigger
		return FailureWouldImmediatelyTrigger
	case -1121, -4141: // invalid symbol / symbol closed
		return FailureSymbolUnsupported
	case -4016, -4131: // price outside limits / PERCENT_PRICE
		return FailurePriceOutOfRange
	case -2015, -2014: // invalid API key / permissions
		return FailurePermissionDenied
	case -1003, -1015, -1001, -1016: // rate limits, disconnects
		return FailureTransient
	}
	if e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500 {
		return FailureTransient
	}
	return FailureTransient
}

// IsNotFound reports the venue's "unknown order" response, which the status
// sync treats as filled-and-purged rather than as an error.
func (e *VenueError) IsNotFound() bool {
	return e.Code == -2013
}

// Classify extracts a FailureKind from any error. Non-venue errors (network
// timeouts, context cancellation) are transient by definition.
func Classify(err error) FailureKind {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind()
	}
	if errors.Is(err, ErrSymbolUnsupported) {
		return FailureSymbolUnsupported
	}
	return FailureTransient
}
