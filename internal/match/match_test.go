package match

import "testing"

func TestValidate_ExactIgnoringCase(t *testing.T) {
	res := Validate("Acme Widget Pro", "acme widget pro")
	if !res.Accepted {
		t.Errorf("expected acceptance, got score %.1f", res.Score)
	}
	if res.Score < AcceptThreshold {
		t.Errorf("expected score >= %.0f, got %.1f", AcceptThreshold, res.Score)
	}
}

func TestValidate_SubstringTolerant(t *testing.T) {
	// The candidate caption usually has extra words around the name.
	res := Validate("Red Coffee Mug 12oz - Buy Online", "Red Coffee Mug")
	if !res.Accepted {
		t.Errorf("expected acceptance for caption containing the name, got %.1f", res.Score)
	}
}

func TestValidate_Unrelated(t *testing.T) {
	res := Validate("Unrelated Gadget", "Acme Widget Pro")
	if res.Accepted {
		t.Errorf("expected rejection, got score %.1f", res.Score)
	}
}

func TestValidate_PunctuationAndWhitespace(t *testing.T) {
	res := Validate("Acme-Widget,  Pro!", "acme widget pro")
	if !res.Accepted {
		t.Errorf("expected punctuation differences to be tolerated, got %.1f", res.Score)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	a := Validate("Bauducco Wafer Chocolate 5oz", "Bauducco Chocolate Wafer")
	b := Validate("Bauducco Wafer Chocolate 5oz", "Bauducco Chocolate Wafer")
	if a != b {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Acme--Widget (Pro) "); got != "acme widget pro" {
		t.Errorf("unexpected normalization: %q", got)
	}
}
