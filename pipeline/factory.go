package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/auralang/voxlate/asr"
	"github.com/auralang/voxlate/audiocapture"
	"github.com/auralang/voxlate/cache"
	"github.com/auralang/voxlate/config"
	"github.com/auralang/voxlate/internal/types"
	"github.com/auralang/voxlate/modelcache"
	"github.com/auralang/voxlate/translate"
	"github.com/auralang/voxlate/tts"
)

// BuildConfig assembles the production coordinator wiring from the
// application configuration: FunASR recognition for Chinese sources,
// the transcription API for others, local OPUS-MT translation with an
// OpenAI fallback, Edge synthesis, and serialized playback. results may
// be nil to disable translation caching.
func BuildConfig(cfg *config.Config, models *modelcache.Cache, results *cache.Cache, source audiocapture.Source, player tts.Player) Config {
	return Config{
		Models:            models,
		UseVAD:            cfg.Audio.UseVAD,
		UsePunctuation:    cfg.Audio.UsePunctuation,
		RemoteTranslation: cfg.Translation.Backend == "openai",

		NewFrontend: func(ctx context.Context, pair types.LanguagePair) (Frontend, error) {
			return buildFrontend(cfg, models, source, pair)
		},
		NewTranslator: func(ctx context.Context, pair types.LanguagePair) (Translator, error) {
			return buildTranslator(cfg, models, results, pair)
		},
		NewSynthesizer: func(pair types.LanguagePair) (Synthesizer, error) {
			voice := cfg.TTS.Voice
			if voice == "" {
				voice = config.VoiceForLanguage(pair.Target)
			}
			return tts.NewEdge(tts.EdgeConfig{
				Voice:  voice,
				Rate:   cfg.TTS.Rate,
				Pitch:  cfg.TTS.Pitch,
				Volume: cfg.TTS.Volume,
			})
		},
		Playback: tts.NewQueue(player, 0),
	}
}

func buildFrontend(cfg *config.Config, models *modelcache.Cache, source audiocapture.Source, pair types.LanguagePair) (Frontend, error) {
	capture, err := audiocapture.New(audiocapture.Config{
		Source:     source,
		SampleRate: cfg.Audio.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	provider, punctuator, err := buildRecognizer(cfg, models, pair)
	if err != nil {
		return nil, err
	}

	return asr.NewFrontend(asr.FrontendConfig{
		Capture:            capture,
		Provider:           provider,
		Punctuator:         punctuator,
		Language:           pair.Source,
		SampleRate:         cfg.Audio.SampleRate,
		UseVAD:             cfg.Audio.UseVAD,
		MaxSegmentDuration: time.Duration(cfg.Audio.MaxSegmentSeconds * float64(time.Second)),
	})
}

// buildRecognizer picks the recognition stack for the source language.
// Chinese uses the local streaming models; everything else goes through
// the transcription API, which restores punctuation itself.
func buildRecognizer(cfg *config.Config, models *modelcache.Cache, pair types.LanguagePair) (asr.Provider, asr.Punctuator, error) {
	if pair.Source != "zh" {
		provider, err := asr.NewWhisper(asr.WhisperConfig{
			APIKey:  cfg.Translation.APIKey,
			BaseURL: cfg.Translation.BaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return provider, asr.NopPunctuator{}, nil
	}

	modelDir, ok := models.Path(cfg.Models.ASRModel)
	if !ok {
		return nil, nil, fmt.Errorf("asr model %s not in cache", cfg.Models.ASRModel)
	}
	funCfg := asr.FunASRConfig{ModelDir: modelDir}
	if cfg.Audio.UseVAD {
		if dir, ok := models.Path(cfg.Models.VADModel); ok {
			funCfg.VADDir = dir
		}
	}
	if cfg.Audio.UsePunctuation {
		if dir, ok := models.Path(cfg.Models.PuncModel); ok {
			funCfg.PuncDir = dir
		}
	}

	provider, err := asr.NewFunASR(funCfg)
	if err != nil {
		return nil, nil, err
	}
	var punctuator asr.Punctuator = asr.NopPunctuator{}
	if funCfg.PuncDir != "" {
		punctuator = provider
	}
	return provider, punctuator, nil
}

func buildTranslator(cfg *config.Config, models *modelcache.Cache, results *cache.Cache, pair types.LanguagePair) (Translator, error) {
	var (
		backend translate.Translator
		name    string
		err     error
	)

	if cfg.Translation.Backend == "openai" {
		backend = translate.NewOpenAI(translate.OpenAIConfig{
			APIKey:      cfg.Translation.APIKey,
			BaseURL:     cfg.Translation.BaseURL,
			Model:       cfg.Translation.Model,
			ContextSize: cfg.Translation.ContextSize,
		})
		name = "openai"
	} else {
		modelName := cfg.TranslationModel(pair.Source, pair.Target)
		modelDir, ok := models.Path(modelName)
		if !ok {
			return nil, fmt.Errorf("translation model %s not in cache", modelName)
		}
		backend, err = translate.NewOpusMT(translate.OpusMTConfig{
			ModelDir:  modelDir,
			Source:    pair.Source,
			Target:    pair.Target,
			MaxLength: cfg.Translation.MaxLength,
		})
		if err != nil {
			return nil, err
		}
		name = modelName
	}

	if results != nil {
		backend = translate.NewCached(backend, results, name)
	}
	return translate.NewService(backend, pair, cfg.Translation.ChunkSize), nil
}
