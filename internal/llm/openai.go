package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

const (
	defaultSTTModel   = "gpt-4o-mini-transcribe"
	defaultTTSModel   = "gpt-4o-mini-tts"
	defaultImageModel = "gpt-image-1"
)

// OpenAIClient talks to the OpenAI Responses, Audio and Images APIs.
type OpenAIClient struct {
	client     openai.Client
	sttModel   string
	ttsModel   string
	imageModel string
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	opts := []ooption.RequestOption{ooption.WithAPIKey(strings.TrimSpace(cfg.OpenAIKey))}
	if u := strings.TrimSpace(cfg.OpenAIBaseURL); u != "" {
		opts = append(opts, ooption.WithBaseURL(u))
	}
	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		sttModel:   orDefault(cfg.STTModel, defaultSTTModel),
		ttsModel:   orDefault(cfg.TTSModel, defaultTTSModel),
		imageModel: orDefault(cfg.ImageModel, defaultImageModel),
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	items := make(oresponses.ResponseInputParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		items = append(items, oresponses.ResponseInputItemParamOfMessage(m.Content, openAIRole(m.Role)))
	}

	params := oresponses.ResponseNewParams{
		Model: oshared.ResponsesModel(strings.TrimSpace(req.Model)),
		Input: oresponses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return ChatResponse{}, openAIError("chat", err)
	}
	return ChatResponse{
		Text:        extractOpenAIResponseText(*resp),
		TotalTokens: int(resp.Usage.TotalTokens),
	}, nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audio io.Reader, filename, mime string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}
	if mime == "" {
		mime = "audio/webm"
	}
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(c.sttModel),
		File:  openai.File(audio, filename, mime),
	})
	if err != nil {
		return "", openAIError("transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *OpenAIClient) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	res, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.ttsModel),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, openAIError("speech", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Op: "speech", Err: fmt.Errorf("read audio: %w", err)}
	}
	return body, nil
}

func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, size string) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.imageModel),
		N:      openai.Int(1),
	}
	if size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}
	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, openAIError("image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &ProviderError{Provider: "openai", Op: "image", Err: errors.New("empty image response")}
	}
	png, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Op: "image", Err: fmt.Errorf("decode image: %w", err)}
	}
	return png, nil
}

func openAIRole(role string) oresponses.EasyInputMessageRole {
	switch role {
	case RoleSystem:
		return oresponses.EasyInputMessageRoleSystem
	case RoleAssistant:
		return oresponses.EasyInputMessageRoleAssistant
	default:
		return oresponses.EasyInputMessageRoleUser
	}
}

func openAIError(op string, err error) error {
	pe := &ProviderError{Provider: "openai", Op: op, Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe.Status = apiErr.StatusCode
	}
	return pe
}

func extractOpenAIResponseText(resp oresponses.Response) string {
	var sb strings.Builder
	for _, item := range resp.Output {
		if strings.TrimSpace(item.Type) != "message" {
			continue
		}
		msg := item.AsMessage()
		for _, part := range msg.Content {
			if strings.TrimSpace(part.Type) != "output_text" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(strings.TrimSpace(part.Text))
		}
	}
	return sb.String()
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
