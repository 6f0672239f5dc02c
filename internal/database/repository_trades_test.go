package database

import (
	"strings"
	"testing"
)

// sync_issues is append-only: a placement failure must not discard issues
// recorded by earlier probe failures.
func TestMarkTradeFailedAppendsSyncIssues(t *testing.T) {
	if !strings.Contains(markTradeFailedSQL, `COALESCE(sync_issues, '[]'::jsonb) ||`) {
		t.Fatalf("MarkTradeFailed must append to sync_issues, got:\n%s", markTradeFailedSQL)
	}
	if strings.Contains(markTradeFailedSQL, "sync_issues = $") {
		t.Error("MarkTradeFailed overwrites sync_issues")
	}
}
