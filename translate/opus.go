package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// OpusMT shells out to an opusmt-runner process serving a local OPUS-MT
// model. The model directory comes from the model cache and is fixed to
// one language pair, so Translate rejects any other pair.
type OpusMT struct {
	binPath   string
	modelDir  string
	source    string
	target    string
	maxLength int
	numBeams  int
}

// OpusMTConfig holds paths and decoding parameters for the runner.
type OpusMTConfig struct {
	BinPath   string // path to opusmt-runner, looked up on PATH if empty
	ModelDir  string
	Source    string
	Target    string
	MaxLength int // default 512
	NumBeams  int // default 4
}

// NewOpusMT creates a translator backed by a local OPUS-MT model.
func NewOpusMT(cfg OpusMTConfig) (*OpusMT, error) {
	if cfg.ModelDir == "" {
		return nil, fmt.Errorf("opusmt: model directory required")
	}
	if _, err := os.Stat(cfg.ModelDir); err != nil {
		return nil, fmt.Errorf("opusmt: model directory: %w", err)
	}

	binPath := cfg.BinPath
	if binPath == "" {
		var err error
		binPath, err = exec.LookPath("opusmt-runner")
		if err != nil {
			return nil, fmt.Errorf("opusmt: runner binary not found: %w", err)
		}
	}

	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}
	if cfg.NumBeams == 0 {
		cfg.NumBeams = 4
	}

	return &OpusMT{
		binPath:   binPath,
		modelDir:  cfg.ModelDir,
		source:    cfg.Source,
		target:    cfg.Target,
		maxLength: cfg.MaxLength,
		numBeams:  cfg.NumBeams,
	}, nil
}

// Translate runs the text through the local model. Text arrives on the
// runner's stdin and the translation comes back as JSON on stdout.
func (m *OpusMT) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source != m.source || target != m.target {
		return "", fmt.Errorf("opusmt: model serves %s-%s, not %s-%s", m.source, m.target, source, target)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, m.binPath,
		"--model", m.modelDir,
		"--max-length", strconv.Itoa(m.maxLength),
		"--beams", strconv.Itoa(m.numBeams),
	)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("opusmt-runner failed: %w, stderr: %s", err, stderr.String())
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", fmt.Errorf("parse runner output: %w", err)
	}
	return out.Text, nil
}

func (m *OpusMT) Close() error { return nil }
