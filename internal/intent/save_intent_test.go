package intent

import (
	"context"
	"errors"
	"testing"
)

func TestDetect_AsClauseParsedLocally(t *testing.T) {
	llm := &stubLLM{err: errors.New("should not be called")}
	d := NewSaveIntentDetector(llm, nil)

	tests := []struct {
		caption string
		want    string
	}{
		{"Agrega esta imagen como cedula Juan", "cedula Juan"},
		{"guarda esto como recibo luz", "recibo luz"},
		{`save this as "passport scan"`, "passport scan"},
		{"Guárdame la foto como factura enero.", "factura enero"},
	}
	for _, tt := range tests {
		got := d.Detect(context.Background(), tt.caption)
		if !got.Save {
			t.Errorf("Detect(%q).Save = false, want true", tt.caption)
			continue
		}
		if got.Name != tt.want {
			t.Errorf("Detect(%q).Name = %q, want %q", tt.caption, got.Name, tt.want)
		}
	}
	if llm.calls != 0 {
		t.Errorf("llm.calls = %d, want 0 for as-clause captions", llm.calls)
	}
}

func TestDetect_NoSaveVerbSkipsModel(t *testing.T) {
	llm := &stubLLM{response: `{"save":true,"name":"nope"}`}
	d := NewSaveIntentDetector(llm, nil)

	got := d.Detect(context.Background(), "mira esta foto de la playa")
	if got.Save {
		t.Error("captions without save phrasing must not be save intents")
	}
	if llm.calls != 0 {
		t.Errorf("llm.calls = %d, want 0", llm.calls)
	}
}

func TestDetect_ModelResolvesAmbiguousPhrasing(t *testing.T) {
	llm := &stubLLM{response: `Claro: {"save": true, "name": "contrato casa"}`}
	d := NewSaveIntentDetector(llm, nil)

	got := d.Detect(context.Background(), "agrega el contrato de la casa porfa")
	if !got.Save || got.Name != "contrato casa" {
		t.Errorf("Detect = %+v, want save with name contrato casa", got)
	}
}

func TestDetect_ModelFailureDegrades(t *testing.T) {
	d := NewSaveIntentDetector(&stubLLM{err: errors.New("boom")}, nil)
	if got := d.Detect(context.Background(), "guarda esta imagen porfa"); got.Save {
		t.Errorf("Detect on model failure = %+v, want no save intent", got)
	}
}

func TestDetect_EmptyNameMeansNoIntent(t *testing.T) {
	d := NewSaveIntentDetector(&stubLLM{response: `{"save":true,"name":"  "}`}, nil)
	if got := d.Detect(context.Background(), "guarda esto"); got.Save {
		t.Errorf("Detect = %+v, want save=false when name empty", got)
	}
}
