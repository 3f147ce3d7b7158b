// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

const (
	appName        = "voxlate"
	configFileName = "config.json"
)

// AudioConfig holds audio capture and segmentation settings.
type AudioConfig struct {
	SampleRate         int     `json:"sample_rate"`
	Channels           int     `json:"channels"`
	ChunkDurationMS    int     `json:"chunk_duration_ms"`
	VADChunkDurationMS int     `json:"vad_chunk_duration_ms"`
	MaxSegmentSeconds  float64 `json:"max_segment_duration_seconds"`
	UseVAD             bool    `json:"use_vad"`
	UsePunctuation     bool    `json:"use_punctuation"`
}

// TranslationConfig holds translation settings.
type TranslationConfig struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	ChunkSize      int    `json:"chunk_size"` // incremental translation block size, in runes
	MaxLength      int    `json:"max_length"` // upper bound passed to the translation backend
	ContextSize    int    `json:"context_size"`

	// Backend selects the translation engine: "openai" or "local".
	Backend string `json:"backend,omitempty"`
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

// TTSConfig holds speech synthesis settings. Rate, Pitch and Volume are
// signed percent/Hz deltas in the service's native form, e.g. "+0%", "-10Hz".
type TTSConfig struct {
	Voice  string `json:"voice"`
	Rate   string `json:"rate"`
	Pitch  string `json:"pitch"`
	Volume string `json:"volume"`
}

// ModelConfig names the model artifacts the pipeline depends on.
type ModelConfig struct {
	Dir               string            `json:"models_dir"`
	ASRModel          string            `json:"asr_model"`
	VADModel          string            `json:"vad_model"`
	PuncModel         string            `json:"punc_model"`
	TranslationModels map[string]string `json:"translation_models"`
}

// Config represents the application configuration.
type Config struct {
	Audio       AudioConfig       `json:"audio"`
	Translation TranslationConfig `json:"translation"`
	TTS         TTSConfig         `json:"tts"`
	Models      ModelConfig       `json:"models"`
}

// ttsVoices maps target languages to a default voice.
var ttsVoices = map[string]string{
	"en": "en-US-AriaNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
	"ja": "ja-JP-NanamiNeural",
	"ko": "ko-KR-SunHiNeural",
	"fr": "fr-FR-DeniseNeural",
	"de": "de-DE-KatjaNeural",
	"es": "es-ES-ElviraNeural",
	"ru": "ru-RU-SvetlanaNeural",
}

const defaultVoice = "en-US-AriaNeural"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:         16000,
			Channels:           1,
			ChunkDurationMS:    600,
			VADChunkDurationMS: 200,
			MaxSegmentSeconds:  7.0,
			UseVAD:             true,
			UsePunctuation:     true,
		},
		Translation: TranslationConfig{
			SourceLanguage: "zh",
			TargetLanguage: "en",
			ChunkSize:      128,
			MaxLength:      512,
			ContextSize:    5,
			Backend:        "local",
		},
		TTS: TTSConfig{
			Voice:  defaultVoice,
			Rate:   "+0%",
			Pitch:  "+0Hz",
			Volume: "+0%",
		},
		Models: ModelConfig{
			Dir:       defaultModelsDir(),
			ASRModel:  "paraformer-zh-streaming",
			VADModel:  "fsmn-vad",
			PuncModel: "ct-punc",
			TranslationModels: map[string]string{
				"zh-en": "opus-mt-zh-en",
				"en-zh": "opus-mt-en-zh",
				"zh-ja": "opus-mt-zh-ja",
				"ja-zh": "opus-mt-ja-zh",
				"en-ja": "opus-mt-en-ja",
				"ja-en": "opus-mt-ja-en",
				"zh-ko": "opus-mt-zh-ko",
				"ko-zh": "opus-mt-ko-zh",
			},
		},
	}
}

// Load loads configuration from the config file.
// Returns the default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.SaveTo(path)
}

// SaveTo persists the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = def.Audio.Channels
	}
	if c.Audio.ChunkDurationMS == 0 {
		c.Audio.ChunkDurationMS = def.Audio.ChunkDurationMS
	}
	if c.Audio.VADChunkDurationMS == 0 {
		c.Audio.VADChunkDurationMS = def.Audio.VADChunkDurationMS
	}
	if c.Audio.MaxSegmentSeconds == 0 {
		c.Audio.MaxSegmentSeconds = def.Audio.MaxSegmentSeconds
	}
	if c.Translation.ChunkSize == 0 {
		c.Translation.ChunkSize = def.Translation.ChunkSize
	}
	if c.Translation.MaxLength == 0 {
		c.Translation.MaxLength = def.Translation.MaxLength
	}
	if c.Translation.ContextSize == 0 {
		c.Translation.ContextSize = def.Translation.ContextSize
	}
	if c.TTS.Voice == "" {
		c.TTS.Voice = def.TTS.Voice
	}
	if c.TTS.Rate == "" {
		c.TTS.Rate = def.TTS.Rate
	}
	if c.TTS.Pitch == "" {
		c.TTS.Pitch = def.TTS.Pitch
	}
	if c.TTS.Volume == "" {
		c.TTS.Volume = def.TTS.Volume
	}
	if c.Models.Dir == "" {
		c.Models.Dir = def.Models.Dir
	}
	if c.Models.ASRModel == "" {
		c.Models.ASRModel = def.Models.ASRModel
	}
	if c.Models.VADModel == "" {
		c.Models.VADModel = def.Models.VADModel
	}
	if c.Models.PuncModel == "" {
		c.Models.PuncModel = def.Models.PuncModel
	}
	if len(c.Models.TranslationModels) == 0 {
		c.Models.TranslationModels = def.Models.TranslationModels
	}
}

// ValidateLanguage reports whether code is a well-formed ISO 639-1 code.
func ValidateLanguage(code string) error {
	if code == "" {
		return fmt.Errorf("empty language code")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", code, err)
	}
	base, _ := tag.Base()
	if !strings.EqualFold(base.String(), code) {
		return fmt.Errorf("language %q: expected bare ISO 639-1 code", code)
	}
	return nil
}

// TranslationModel returns the model name for a language pair, or "" when
// the pair has no mapping.
func (c *Config) TranslationModel(source, target string) string {
	return c.Models.TranslationModels[source+"-"+target]
}

// UpdateLanguagePair switches the active translation direction and the
// TTS voice that goes with the new target language.
func (c *Config) UpdateLanguagePair(source, target string) error {
	if err := ValidateLanguage(source); err != nil {
		return err
	}
	if err := ValidateLanguage(target); err != nil {
		return err
	}
	// The API backend serves any validated pair; only local translation
	// is limited to the model table.
	if c.Translation.Backend != "openai" && c.TranslationModel(source, target) == "" {
		return fmt.Errorf("no translation model for pair %s-%s", source, target)
	}

	c.Translation.SourceLanguage = source
	c.Translation.TargetLanguage = target
	c.TTS.Voice = VoiceForLanguage(target)
	return nil
}

// VoiceForLanguage returns the default synthesis voice for a language.
func VoiceForLanguage(lang string) string {
	if v, ok := ttsVoices[lang]; ok {
		return v
	}
	return defaultVoice
}

// SupportedLanguages returns every language appearing in the translation
// model table, sorted.
func (c *Config) SupportedLanguages() []string {
	seen := make(map[string]bool)
	for pair := range c.Models.TranslationModels {
		src, dst, ok := strings.Cut(pair, "-")
		if !ok {
			continue
		}
		seen[src] = true
		seen[dst] = true
	}

	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultModelsDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "models")
	}
	return filepath.Join(dir, appName, "models")
}
