package asr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// FunASR shells out to a funasr-runner process for streaming Paraformer
// recognition. The runner loads the recognizer model (plus optional VAD
// and punctuation models) from local directories managed by the model
// cache and prints one JSON result per invocation.
type FunASR struct {
	binPath   string
	modelDir  string // paraformer model directory
	vadDir    string // optional fsmn-vad directory
	puncDir   string // optional ct-punc directory
}

// FunASRConfig holds paths for the runner and its models. ModelDir is
// required; VADDir and PuncDir enable the corresponding runner stages
// when set.
type FunASRConfig struct {
	BinPath  string // path to funasr-runner, looked up on PATH if empty
	ModelDir string
	VADDir   string
	PuncDir  string
}

// NewFunASR creates a provider backed by a local funasr-runner binary.
func NewFunASR(cfg FunASRConfig) (*FunASR, error) {
	if cfg.ModelDir == "" {
		return nil, fmt.Errorf("funasr: model directory required")
	}
	if _, err := os.Stat(cfg.ModelDir); err != nil {
		return nil, fmt.Errorf("funasr: model directory: %w", err)
	}

	binPath := cfg.BinPath
	if binPath == "" {
		var err error
		binPath, err = exec.LookPath("funasr-runner")
		if err != nil {
			return nil, fmt.Errorf("funasr: runner binary not found: %w", err)
		}
	}

	return &FunASR{
		binPath:  binPath,
		modelDir: cfg.ModelDir,
		vadDir:   cfg.VADDir,
		puncDir:  cfg.PuncDir,
	}, nil
}

// runnerOutput is the JSON the runner prints on stdout.
type runnerOutput struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Transcribe writes the audio to a temp WAV file and runs the recognizer.
func (f *FunASR) Transcribe(audio []float32, language string) (*Result, error) {
	if len(audio) == 0 {
		return &Result{Language: language}, nil
	}

	audioPath := filepath.Join(os.TempDir(), fmt.Sprintf("funasr_%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(audioPath, EncodeWAV(audio, 16000), 0644); err != nil {
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	defer os.Remove(audioPath)

	args := []string{
		"--model", f.modelDir,
		"--audio", audioPath,
		"--output", "json",
	}
	if f.vadDir != "" {
		args = append(args, "--vad-model", f.vadDir)
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	out, err := f.run(args)
	if err != nil {
		return nil, err
	}
	return &Result{Text: out.Text, Language: out.Language, Confidence: out.Confidence}, nil
}

// Punctuate runs the punctuation restoration model over raw recognizer
// text. Without a punctuation model the text passes through unchanged.
func (f *FunASR) Punctuate(text string) (string, error) {
	if f.puncDir == "" || text == "" {
		return text, nil
	}

	out, err := f.run([]string{
		"--punc-model", f.puncDir,
		"--punc-text", text,
		"--output", "json",
	})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (f *FunASR) run(args []string) (*runnerOutput, error) {
	cmd := exec.Command(f.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("funasr-runner failed: %w, stderr: %s", err, stderr.String())
	}

	var out runnerOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("parse runner output: %w", err)
	}
	return &out, nil
}

func (f *FunASR) Close() error { return nil }
