package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"aura.town/audio"
	"aura.town/voice"
)

const TTSModel = "gemini-2.5-flash-preview-tts"

// Speech performs one-shot text-to-speech, used for the greeting
// utterance played while the live session is still connecting.
type Speech struct {
	client *genai.Client
	model  string
}

func NewSpeech(ctx context.Context, apiKey string) (*Speech, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Speech{client: client, model: TTSModel}, nil
}

// Synthesize renders text as a single audio chunk at the playback rate.
func (s *Speech) Synthesize(ctx context.Context, text string, persona voice.Persona) (*audio.Chunk, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: string(persona),
				},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	data := inlineAudio(resp)
	if len(data) == 0 {
		return nil, fmt.Errorf("speech synthesis returned no audio")
	}
	return &audio.Chunk{
		Samples: audio.PCM16ToFloat(data),
		Rate:    audio.OutputSampleRate,
	}, nil
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
