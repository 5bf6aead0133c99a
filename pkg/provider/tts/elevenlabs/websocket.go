package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/palchat/pkg/provider/tts"
)

// wsReadLimit bounds a single stream-input message; base64 audio chunks
// routinely exceed the library's 32 KiB default.
const wsReadLimit = 4 << 20

// textMessage is one client frame on the stream-input socket. The first
// frame carries the credentials and voice settings; an empty Text ends input.
type textMessage struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey             string         `json:"xi_api_key,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

// audioResponse is one server frame on the stream-input socket.
type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// wsURL derives the stream-input URL from the configured base URL.
func (p *Provider) wsURL(voiceID string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/text-to-speech/" + voiceID + "/stream-input"
	q := url.Values{}
	q.Set("model_id", p.model)
	if p.outputFormat != "" {
		q.Set("output_format", p.outputFormat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// synthesizeWS sends the whole text over one stream-input session and
// returns the concatenated audio once the server marks the stream final.
func (p *Provider) synthesizeWS(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	wsURL, err := p.wsURL(req.VoiceID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	settings := p.settings
	frames := []textMessage{
		{Text: " ", VoiceSettings: &settings, XiAPIKey: p.apiKey},
		{Text: req.Text + " ", TryTriggerGeneration: true},
		{Text: ""},
	}
	for _, f := range frames {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: send frame: %w", err)
		}
	}

	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && buf.Len() > 0 {
				break
			}
			return nil, fmt.Errorf("elevenlabs: read frame: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("elevenlabs: decode frame: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: stream error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			buf.Write(chunk)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if buf.Len() == 0 {
		return nil, errors.New("elevenlabs: stream produced no audio")
	}
	return &tts.Audio{Data: buf.Bytes(), MIMEType: mimeForFormat(p.outputFormat)}, nil
}

// mimeForFormat maps an ElevenLabs output_format to a MIME type.
func mimeForFormat(format string) string {
	switch {
	case strings.HasPrefix(format, "pcm_"):
		return "audio/L16;rate=" + strings.TrimPrefix(format, "pcm_")
	case strings.HasPrefix(format, "ulaw_"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus_"):
		return "audio/ogg"
	default:
		return mimeMPEG
	}
}
