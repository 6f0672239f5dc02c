package exchange

import (
	"context"
	"fmt"
	"testing"
)

func TestVenueErrorKind(t *testing.T) {
	tests := []struct {
		code     int
		want     FailureKind
		terminal bool
	}{
		{-2019, FailureMarginInsufficient, true},
		{-1013, FailureQtyOutOfBounds, true},
		{-4003, FailureQtyOutOfBounds, true},
		{-4164, FailureNotionalTooSmall, true},
		{-2021, FailureWouldImmediatelyTrigger, true},
		{-1121, FailureSymbolUnsupported, true},
		{-4016, FailurePriceOutOfRange, true},
		{-2015, FailurePermissionDenied, false},
		{-2014, FailurePermissionDenied, false},
		{-1003, FailureTransient, false},
		{-1001, FailureTransient, false},
		{-9999, FailureTransient, false}, // unknown codes never go terminal
	}
	for _, tt := range tests {
		e := &VenueError{Venue: "binance", Code: tt.code}
		if got := e.Kind(); got != tt.want {
			t.Errorf("code %d: kind = %s, want %s", tt.code, got, tt.want)
		}
		if got := e.Kind().Terminal(); got != tt.terminal {
			t.Errorf("code %d: terminal = %v, want %v", tt.code, got, tt.terminal)
		}
	}
}

func TestVenueErrorHTTPFallback(t *testing.T) {
	e := &VenueError{Venue: "binance", Code: 0, HTTPStatus: 503}
	if got := e.Kind(); got != FailureTransient {
		t.Errorf("kind = %s, want TRANSIENT", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !(&VenueError{Code: -2013}).IsNotFound() {
		t.Error("-2013 should be not-found")
	}
	if (&VenueError{Code: -2019}).IsNotFound() {
		t.Error("-2019 should not be not-found")
	}
}

func TestClassify(t *testing.T) {
	wrapped := fmt.Errorf("placing order: %w", &VenueError{Code: -2019})
	if got := Classify(wrapped); got != FailureMarginInsufficient {
		t.Errorf("wrapped venue error: kind = %s, want MARGIN_INSUFFICIENT", got)
	}
	if got := Classify(ErrSymbolUnsupported); got != FailureSymbolUnsupported {
		t.Errorf("sentinel: kind = %s, want SYMBOL_UNSUPPORTED", got)
	}
	if got := Classify(context.DeadlineExceeded); got != FailureTransient {
		t.Errorf("timeout: kind = %s, want TRANSIENT", got)
	}
}
