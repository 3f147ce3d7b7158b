// Package modelcache tracks, downloads and caches the model artifacts the
// translation pipeline depends on.
package modelcache

import (
	"fmt"

	"github.com/auralang/voxlate/internal/types"
)

// Kind classifies a model artifact.
type Kind string

const (
	KindASR         Kind = "asr"
	KindVAD         Kind = "vad"
	KindPunctuation Kind = "punctuation"
	KindTranslation Kind = "translation"
)

// Spec describes a downloadable model artifact.
type Spec struct {
	ID        string // unique identifier, e.g. "opus-mt-zh-en"
	Kind      Kind
	Filename  string // file or directory name under the cache dir
	URL       string
	SizeBytes int64 // approximate, for progress reporting
	IsArchive bool  // zip archives are unpacked into a directory
}

// registry lists every artifact the pipeline knows how to fetch.
// Streaming ASR, VAD and punctuation models come from ModelScope; the
// offline translation models are OPUS-MT releases.
var registry = []Spec{
	{
		ID:        "paraformer-zh-streaming",
		Kind:      KindASR,
		Filename:  "paraformer-zh-streaming",
		URL:       "https://www.modelscope.cn/api/v1/models/iic/speech_paraformer-large_asr_nat-zh-cn-16k-common-vocab8404-online/repo?Revision=master",
		SizeBytes: 880 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "fsmn-vad",
		Kind:      KindVAD,
		Filename:  "fsmn-vad",
		URL:       "https://www.modelscope.cn/api/v1/models/iic/speech_fsmn_vad_zh-cn-16k-common-pytorch/repo?Revision=master",
		SizeBytes: 2 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "ct-punc",
		Kind:      KindPunctuation,
		Filename:  "ct-punc",
		URL:       "https://www.modelscope.cn/api/v1/models/iic/punc_ct-transformer_cn-en-common-vocab471067-large/repo?Revision=master",
		SizeBytes: 1100 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-zh-en",
		Kind:      KindTranslation,
		Filename:  "opus-mt-zh-en",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/zh-en/opus-2020-01-08.zip",
		SizeBytes: 310 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-en-zh",
		Kind:      KindTranslation,
		Filename:  "opus-mt-en-zh",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/en-zh/opus-2020-01-08.zip",
		SizeBytes: 310 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-zh-ja",
		Kind:      KindTranslation,
		Filename:  "opus-mt-zh-ja",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/zh-ja/opus-2020-01-16.zip",
		SizeBytes: 280 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-ja-zh",
		Kind:      KindTranslation,
		Filename:  "opus-mt-ja-zh",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/ja-zh/opus-2020-01-16.zip",
		SizeBytes: 280 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-en-ja",
		Kind:      KindTranslation,
		Filename:  "opus-mt-en-ja",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/en-ja/opus-2020-01-16.zip",
		SizeBytes: 280 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-ja-en",
		Kind:      KindTranslation,
		Filename:  "opus-mt-ja-en",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/ja-en/opus-2020-01-16.zip",
		SizeBytes: 280 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-zh-ko",
		Kind:      KindTranslation,
		Filename:  "opus-mt-zh-ko",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/zh-ko/opus-2020-01-16.zip",
		SizeBytes: 280 * 1024 * 1024,
		IsArchive: true,
	},
	{
		ID:        "opus-mt-ko-zh",
		Kind:      KindTranslation,
		Filename:  "opus-mt-ko-zh",
		URL:       "https://object.pouta.csc.fi/OPUS-MT-models/ko-zh/opus-2020-01-16.zip",
		SizeBytes: 280 * 1024 * 1024,
		IsArchive: true,
	},
}

// Lookup returns the spec for a model ID.
func Lookup(id string) (Spec, bool) {
	for _, s := range registry {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

// TranslationSpec returns the translation model spec for a language pair.
func TranslationSpec(pair types.LanguagePair) (Spec, bool) {
	return Lookup("opus-mt-" + pair.String())
}

// RecognitionModels resolves the recognition artifacts a language pair
// needs. Only zh-source pairs run through the streaming recognizer, so
// the ASR/VAD/punctuation artifacts apply to those directions alone.
func RecognitionModels(pair types.LanguagePair, useVAD, usePunctuation bool) []Spec {
	var specs []Spec
	if pair.Source == "zh" {
		asr, _ := Lookup("paraformer-zh-streaming")
		specs = append(specs, asr)
		if useVAD {
			vad, _ := Lookup("fsmn-vad")
			specs = append(specs, vad)
		}
		if usePunctuation {
			punc, _ := Lookup("ct-punc")
			specs = append(specs, punc)
		}
	}
	return specs
}

// RequiredModels resolves the full model set a language pair needs when
// translation runs on a local model.
func RequiredModels(pair types.LanguagePair, useVAD, usePunctuation bool) ([]Spec, error) {
	translation, ok := TranslationSpec(pair)
	if !ok {
		return nil, fmt.Errorf("no translation model for pair %s", pair)
	}
	return append([]Spec{translation}, RecognitionModels(pair, useVAD, usePunctuation)...), nil
}
