package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore_CreatesFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "state.json")
	st, err := OpenStore(path, State{Prompt: "p0", Gain: 1})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not created: %v", err)
	}
	if st.Prompt() != "p0" || st.Gain() != 1 {
		t.Fatalf("snapshot = %+v", st.Snapshot())
	}
}

func TestStore_PersistsMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := OpenStore(path, State{Prompt: "default", Gain: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SetPrompt("short answers"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetGain(2.5); err != nil {
		t.Fatal(err)
	}

	again, err := OpenStore(path, State{Prompt: "default", Gain: 1})
	if err != nil {
		t.Fatal(err)
	}
	if again.Prompt() != "short answers" || again.Gain() != 2.5 {
		t.Fatalf("reloaded = %+v", again.Snapshot())
	}

	// пустой промпт — откат к дефолту
	if err := again.SetPrompt(""); err != nil {
		t.Fatal(err)
	}
	if again.Prompt() != "default" {
		t.Fatalf("prompt = %q", again.Prompt())
	}
}

func TestStore_RejectsBadGain(t *testing.T) {
	st, err := OpenStore(filepath.Join(t.TempDir(), "s.json"), State{Prompt: "p", Gain: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range []float64{0, -1, 11} {
		if err := st.SetGain(g); err == nil {
			t.Fatalf("SetGain(%v) accepted", g)
		}
	}
	if st.Gain() != 1 {
		t.Fatalf("gain changed to %v", st.Gain())
	}
}

func TestStore_FillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte(`{"prompt": ""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := OpenStore(path, State{Prompt: "def", Gain: 1.2})
	if err != nil {
		t.Fatal(err)
	}
	if st.Prompt() != "def" || st.Gain() != 1.2 {
		t.Fatalf("snapshot = %+v", st.Snapshot())
	}
}
