package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	edgeWSBaseURL    = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	edgeClientToken  = "6A5AA1D4EAB496E89B7DB57A9BC3F66C9DD1C0EF"
	edgeOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
)

// EdgeConfig configures the Edge speech synthesizer. Rate, Pitch and
// Volume are signed prosody deltas in the service's own notation, e.g.
// "+0%", "-10%", "+5Hz".
type EdgeConfig struct {
	Voice  string // e.g. "en-US-AriaNeural"
	Rate   string // default "+0%"
	Pitch  string // default "+0Hz"
	Volume string // default "+0%"

	// BaseURL overrides the service endpoint, for tests.
	BaseURL string
}

// Edge synthesizes speech over the Edge read-aloud websocket endpoint.
// Each Synthesize call dials a fresh connection, sends the audio config
// and one SSML request, and collects binary audio frames until the
// service signals the end of the turn.
type Edge struct {
	cfg EdgeConfig
}

// NewEdge creates an Edge synthesizer.
func NewEdge(cfg EdgeConfig) (*Edge, error) {
	if cfg.Voice == "" {
		return nil, fmt.Errorf("edge: voice required")
	}
	if cfg.Rate == "" {
		cfg.Rate = "+0%"
	}
	if cfg.Pitch == "" {
		cfg.Pitch = "+0Hz"
	}
	if cfg.Volume == "" {
		cfg.Volume = "+0%"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = edgeWSBaseURL
	}
	return &Edge{cfg: cfg}, nil
}

// Voice returns the configured voice name.
func (e *Edge) Voice() string { return e.cfg.Voice }

// Synthesize converts text to MP3 audio.
func (e *Edge) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := conn.WriteMessage(websocket.TextMessage, buildSpeechConfig()); err != nil {
		return nil, fmt.Errorf("send speech config: %w", err)
	}
	ssml := buildSSML(text, e.cfg.Voice, e.cfg.Rate, e.cfg.Pitch, e.cfg.Volume)
	if err := conn.WriteMessage(websocket.TextMessage, buildSSMLMessage(requestID, ssml)); err != nil {
		return nil, fmt.Errorf("send ssml: %w", err)
	}

	var audio bytes.Buffer
	for {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(deadline)
		}
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read synthesis frame: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			payload, err := parseBinaryFrame(message)
			if err != nil {
				return nil, err
			}
			audio.Write(payload)
		case websocket.TextMessage:
			if isTurnEnd(message) {
				if audio.Len() == 0 {
					return nil, fmt.Errorf("no audio received for request %s", requestID)
				}
				return audio.Bytes(), nil
			}
		}
	}
}

func (e *Edge) Close() error { return nil }

func (e *Edge) dial(ctx context.Context) (*websocket.Conn, error) {
	connectionID := strings.ReplaceAll(uuid.NewString(), "-", "")
	url := fmt.Sprintf("%s?TrustedClientToken=%s&ConnectionId=%s",
		e.cfg.BaseURL, edgeClientToken, connectionID)

	headers := http.Header{}
	headers.Set("Origin", "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func buildSpeechConfig() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "X-Timestamp:%s\r\n", edgeTimestamp())
	b.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	b.WriteString("Path:speech.config\r\n\r\n")
	fmt.Fprintf(&b, `{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"%s"}}}}`, edgeOutputFormat)
	return b.Bytes()
}

func buildSSMLMessage(requestID, ssml string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "X-RequestId:%s\r\n", requestID)
	b.WriteString("Content-Type:application/ssml+xml\r\n")
	fmt.Fprintf(&b, "X-Timestamp:%s\r\n", edgeTimestamp())
	b.WriteString("Path:ssml\r\n\r\n")
	b.WriteString(ssml)
	return b.Bytes()
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func buildSSML(text, voice, rate, pitch, volume string) string {
	lang := voiceLocale(voice)
	return fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>`+
			`<voice name='%s'><prosody pitch='%s' rate='%s' volume='%s'>%s</prosody></voice></speak>`,
		lang, voice, pitch, rate, volume, ssmlEscaper.Replace(text),
	)
}

// voiceLocale extracts the locale from a voice name like "en-US-AriaNeural".
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

func edgeTimestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

// parseBinaryFrame splits a binary websocket frame into headers and
// payload. The first two bytes carry the big-endian header length; only
// frames whose Path header is "audio" contribute payload bytes.
func parseBinaryFrame(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("binary frame too short: %d bytes", len(frame))
	}
	headerLen := int(binary.BigEndian.Uint16(frame[:2]))
	if len(frame) < 2+headerLen {
		return nil, fmt.Errorf("binary frame truncated: header %d, total %d", headerLen, len(frame))
	}
	headers := string(frame[2 : 2+headerLen])
	// "Path:audio" must match the whole header line; metadata frames
	// arrive with Path:audio.metadata.
	if !strings.Contains(headers, "Path:audio\r\n") {
		return nil, nil
	}
	return frame[2+headerLen:], nil
}

func isTurnEnd(message []byte) bool {
	return bytes.Contains(message, []byte("Path:turn.end"))
}
