package config

import (
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if !cfg.Audio.UseVAD {
		t.Error("UseVAD = false, want true")
	}
	if cfg.Translation.ChunkSize != 128 {
		t.Errorf("ChunkSize = %d, want 128", cfg.Translation.ChunkSize)
	}
	if cfg.TTS.Rate != "+0%" {
		t.Errorf("Rate = %q, want \"+0%%\"", cfg.TTS.Rate)
	}
	if cfg.TranslationModel("zh", "en") == "" {
		t.Error("no default zh-en translation model")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Translation.SourceLanguage = "ja"
	cfg.Translation.TargetLanguage = "zh"
	cfg.TTS.Voice = "zh-CN-XiaoxiaoNeural"

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Translation.SourceLanguage != "ja" {
		t.Errorf("SourceLanguage = %q, want \"ja\"", loaded.Translation.SourceLanguage)
	}
	if loaded.TTS.Voice != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("Voice = %q, want zh-CN-XiaoxiaoNeural", loaded.TTS.Voice)
	}
	// Unset sections fall back to defaults.
	if loaded.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", loaded.Audio.SampleRate)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Error("missing file should yield defaults")
	}
}

func TestUpdateLanguagePair(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		target  string
		wantErr bool
	}{
		{"supported pair", "zh", "en", false},
		{"reverse pair", "en", "zh", false},
		{"unmapped pair", "en", "fr", true},
		{"garbage code", "xx!", "en", true},
		{"empty source", "", "en", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.UpdateLanguagePair(tt.source, tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateLanguagePair(%q, %q) error = %v, wantErr %v", tt.source, tt.target, err, tt.wantErr)
			}
			if err == nil {
				if cfg.Translation.SourceLanguage != tt.source {
					t.Errorf("SourceLanguage = %q, want %q", cfg.Translation.SourceLanguage, tt.source)
				}
				if cfg.TTS.Voice != VoiceForLanguage(tt.target) {
					t.Errorf("Voice = %q, want %q", cfg.TTS.Voice, VoiceForLanguage(tt.target))
				}
			}
		})
	}
}

func TestUpdateLanguagePairAPIBackend(t *testing.T) {
	cfg := Default()
	cfg.Translation.Backend = "openai"

	// Pairs outside the local model table are fine for the API backend.
	if err := cfg.UpdateLanguagePair("en", "fr"); err != nil {
		t.Fatalf("UpdateLanguagePair(en, fr) with api backend: %v", err)
	}
	if cfg.TTS.Voice != VoiceForLanguage("fr") {
		t.Errorf("Voice = %q, want %q", cfg.TTS.Voice, VoiceForLanguage("fr"))
	}

	// Malformed codes are still rejected.
	if err := cfg.UpdateLanguagePair("xx!", "en"); err == nil {
		t.Error("UpdateLanguagePair accepted a malformed code")
	}
}

func TestSupportedLanguages(t *testing.T) {
	langs := Default().SupportedLanguages()
	want := []string{"en", "ja", "ko", "zh"}
	if len(langs) != len(want) {
		t.Fatalf("SupportedLanguages() = %v, want %v", langs, want)
	}
	for i := range want {
		if langs[i] != want[i] {
			t.Errorf("SupportedLanguages()[%d] = %q, want %q", i, langs[i], want[i])
		}
	}
}

func TestVoiceForLanguage(t *testing.T) {
	if v := VoiceForLanguage("ja"); v != "ja-JP-NanamiNeural" {
		t.Errorf("VoiceForLanguage(ja) = %q", v)
	}
	if v := VoiceForLanguage("sw"); v != defaultVoice {
		t.Errorf("VoiceForLanguage(sw) = %q, want default", v)
	}
}
