package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CmdPlayer pipes audio to an external player process and waits for it
// to exit. The default command is ffplay reading from stdin.
type CmdPlayer struct {
	bin  string
	args []string
}

// NewCmdPlayer creates a player around the given command. With no
// arguments it uses ffplay in headless autoexit mode.
func NewCmdPlayer(bin string, args ...string) (*CmdPlayer, error) {
	if bin == "" {
		bin = "ffplay"
		args = []string{"-autoexit", "-nodisp", "-loglevel", "quiet", "-"}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("player binary not found: %w", err)
	}
	return &CmdPlayer{bin: path, args: args}, nil
}

// Play feeds the clip to the player's stdin and blocks until playback
// completes or ctx is cancelled.
func (p *CmdPlayer) Play(ctx context.Context, audio []byte) error {
	cmd := exec.CommandContext(ctx, p.bin, p.args...)
	cmd.Stdin = bytes.NewReader(audio)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}
