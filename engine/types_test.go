package engine_test

import (
	"testing"

	"github.com/fleetsure/premium-engine/engine"
)

func TestMustParseDecimal_PanicsOnGarbage(t *testing.T) {
	// Stored decimals are written by this system; a parse failure means
	// corruption and must not be silently read back as zero.
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-decimal input")
		}
	}()
	engine.MustParseDecimal("not-a-number")
}

func TestMustParseDecimal_ValidInput(t *testing.T) {
	if got := engine.MustParseDecimal("1220.00"); !got.Equal(engine.MustParseDecimal("1220")) {
		t.Errorf("parsed %s, want 1220", got)
	}
}
