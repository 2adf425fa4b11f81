package pipeline

import "testing"

func TestCleanTextEmptyFallsBack(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		if got := CleanText(in); got != SafeFallback {
			t.Errorf("CleanText(%q) = %q, want fallback", in, got)
		}
	}
}

func TestCleanTextSoftensPhrasing(t *testing.T) {
	got := CleanText("You have a disease. This indicates a diagnosis needing treatment.")
	want := "the results suggest a condition. this may suggest a interpretation needing clinical management."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	got := CleanText("Sodium  is\n\nlow.")
	if got != "Sodium is low." {
		t.Errorf("got %q", got)
	}
}

func TestCleanTextCompletesSentences(t *testing.T) {
	got := CleanText("Sodium appears low")
	if got != "Sodium appears low Further clinical review is advised." {
		t.Errorf("got %q", got)
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	inputs := []string{
		"You might have low sodium",
		"Treatment  with medication is common.",
		"All values look fine!",
	}
	for _, in := range inputs {
		once := CleanText(in)
		if twice := CleanText(once); twice != once {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
