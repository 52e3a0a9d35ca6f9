package chat

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/store"
)

const (
	DefaultVoice     = "alloy"
	DefaultImageSize = "1024x1024"
)

var DefaultVoices = []string{"alloy", "verse", "coral", "amber", "breeze", "cobalt", "sol"}

type ImageResult struct {
	ThreadID string `json:"thread_id"`
	URL      string `json:"url"`
	Prompt   string `json:"prompt"`
}

// imagePayload is the message body stored for kind image.
type imagePayload struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

// GenerateImage renders prompt, keeps the PNG in the transient registry and
// records it as an image message. An empty threadID starts a new thread.
func (s *Service) GenerateImage(ctx context.Context, threadID, prompt, size string) (ImageResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ImageResult{}, apperr.Validation("empty image prompt")
	}
	if s.media == nil || s.docs == nil {
		return ImageResult{}, apperr.Validation("image generation is not available")
	}
	if strings.TrimSpace(size) == "" {
		size = s.cfg.ImageSize
	}

	thread, err := s.resolveThread(ctx, threadID, nil)
	if err != nil {
		return ImageResult{}, err
	}

	data, err := s.media.GenerateImage(ctx, prompt, size)
	if err != nil {
		s.metrics.ObserveProviderError(s.media.Name(), err)
		return ImageResult{}, apperr.Upstream(err, "image generation failed")
	}
	entry, err := s.docs.SaveArtifact(data, ".png", "image/png")
	if err != nil {
		return ImageResult{}, err
	}

	url := "/api/temp/" + entry.ID
	body, err := json.Marshal(imagePayload{Prompt: prompt, URL: url})
	if err != nil {
		return ImageResult{}, err
	}
	if _, err := s.store.AddMessage(ctx, store.Message{
		ThreadID: thread.ID,
		Role:     store.RoleAssistant,
		Content:  string(body),
		Kind:     store.KindImage,
	}); err != nil {
		return ImageResult{}, err
	}
	return ImageResult{ThreadID: thread.ID, URL: url, Prompt: prompt}, nil
}

// Transcribe converts recorded speech to text.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, filename, mime string) (string, error) {
	if s.media == nil {
		return "", apperr.Validation("transcription is not available")
	}
	if filename == "" {
		filename = "audio.webm"
	}
	text, err := s.media.Transcribe(ctx, audio, filename, mime)
	if err != nil {
		s.metrics.ObserveProviderError(s.media.Name(), err)
		return "", apperr.Upstream(err, "transcription failed")
	}
	return text, nil
}

// Voices returns the default voice and the allow-list.
func (s *Service) Voices() (string, []string) {
	return s.cfg.DefaultVoice, append([]string(nil), s.cfg.Voices...)
}

// Speak synthesizes mp3 audio. The voice is matched case-insensitively
// against the allow-list; an empty voice uses the default.
func (s *Service) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("empty text")
	}
	if s.media == nil {
		return nil, apperr.Validation("speech is not available")
	}
	if strings.TrimSpace(voice) == "" {
		voice = s.cfg.DefaultVoice
	}
	normalized := strings.ToLower(strings.TrimSpace(voice))
	allowed := false
	for _, v := range s.cfg.Voices {
		if strings.ToLower(v) == normalized {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperr.Validation("unknown voice: %s", voice)
	}

	audio, err := s.media.Speak(ctx, text, normalized)
	if err != nil {
		s.metrics.ObserveProviderError(s.media.Name(), err)
		return nil, apperr.Upstream(err, "speech synthesis failed")
	}
	if len(audio) == 0 {
		return nil, apperr.Upstream(nil, "speech synthesis returned no audio")
	}
	return audio, nil
}
