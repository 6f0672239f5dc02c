package signals

import (
	"testing"

	"github.com/BrianElionDev/BuyBot/internal/database"
)

func TestDeadForAlerts(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{database.StatusFailed, true},
		{database.StatusUnfilled, true},
		{database.StatusCanceled, true},
		{database.StatusExpired, true},
		// CLOSED falls through so the close path can record
		// "position already closed" on the alert.
		{database.StatusClosed, false},
		{database.StatusOpen, false},
		{database.StatusPartiallyClosed, false},
		{database.StatusPending, false},
	}
	for _, tt := range tests {
		if got := deadForAlerts(tt.status); got != tt.want {
			t.Errorf("deadForAlerts(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
