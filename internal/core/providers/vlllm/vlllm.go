package vlllm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/vision"
	"image-processor-go/internal/platform/config"
	"image-processor-go/internal/platform/errors"
	"image-processor-go/internal/platform/observability"
	"image-processor-go/internal/utils"
)

const (
	TypeOpenAI = "openai"
	TypeOllama = "ollama"

	opGenerate = "vision.generate"
)

// Config VLLLM配置结构
type Config struct {
	Name        string
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Timeout     time.Duration
	// HTTPClient overrides the transport used for both provider types.
	HTTPClient *http.Client
}

// FromConfig maps a configured VLLLM entry onto the provider config.
func FromConfig(name string, c config.VLLLMConfig) Config {
	return Config{
		Name:        name,
		Type:        c.Type,
		ModelName:   c.ModelName,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		TopP:        c.TopP,
		Timeout:     c.Timeout,
	}
}

// Provider VLLLM提供者，直接调用多模态API
type Provider struct {
	config Config
	logger *utils.Logger

	openaiClient *openai.Client
	httpClient   *http.Client
}

var _ vision.Client = (*Provider)(nil)

// OllamaRequest Ollama API请求结构
type OllamaRequest struct {
	Model    string                 `json:"model"`
	Messages []OllamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaMessage Ollama消息结构
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // 纯 base64，不带 data URL 前缀
}

// OllamaResponse Ollama API响应结构
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// NewProvider 创建并初始化VLLLM提供者
func NewProvider(cfg Config, logger *utils.Logger) (*Provider, error) {
	if logger == nil {
		logger = utils.DefaultLogger
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	p := &Provider{
		config:     cfg,
		logger:     logger,
		httpClient: httpClient,
	}

	switch strings.ToLower(cfg.Type) {
	case TypeOpenAI:
		if cfg.APIKey == "" || strings.HasPrefix(cfg.APIKey, "your_") {
			// 允许无密钥启动，处理时返回模型错误
			logger.WarnTag("Vision", "no API key configured for %s, set GOOGLE_API_KEY or VISION_API_KEY", cfg.Name)
		}
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		clientConfig.HTTPClient = httpClient
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	case TypeOllama:
		if p.config.BaseURL == "" {
			p.config.BaseURL = "http://localhost:11434"
		}

	default:
		return nil, errors.New(errors.KindConfig, "vlllm.new", fmt.Sprintf("unsupported VLLLM type: %s", cfg.Type))
	}

	logger.InfoTag("Vision", "provider ready: name=%s type=%s model=%s", cfg.Name, cfg.Type, cfg.ModelName)
	return p, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.config.Name }

// Model returns the model identifier sent with each request.
func (p *Provider) Model() string { return p.config.ModelName }

// Generate sends one blocking image query and returns the model's text.
func (p *Provider) Generate(ctx context.Context, img domainimage.Image, prompt string) (text string, err error) {
	if img.Empty() {
		return "", errors.New(errors.KindModel, opGenerate, "no image to send")
	}

	ctx, end := observability.StartSpan(ctx, "vision", "generate")
	defer func() { end(err) }()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	parts := vision.BuildParts(img, prompt)
	start := time.Now()
	p.logger.DebugTag("Vision", "invoke vision API: type=%s model=%s parts=%d image_bytes=%d",
		p.config.Type, p.config.ModelName, len(parts), img.Size)

	var raw string
	switch strings.ToLower(p.config.Type) {
	case TypeOpenAI:
		raw, err = p.generateOpenAI(ctx, parts)
	case TypeOllama:
		raw, err = p.generateOllama(ctx, parts)
	default:
		err = errors.New(errors.KindModel, opGenerate, fmt.Sprintf("unsupported VLLLM provider: %s", p.config.Type))
	}
	if err != nil {
		p.logger.ErrorTag("Vision", "vision API call failed: model=%s error=%v", p.config.ModelName, err)
		return "", err
	}

	text, err = vision.CheckResponse(opGenerate, raw)
	if err != nil {
		p.logger.WarnTag("Vision", "vision API returned empty content: model=%s", p.config.ModelName)
		return "", err
	}

	p.logger.InfoTag("Vision", "vision API call finished: model=%s chars=%d elapsed=%s",
		p.config.ModelName, len([]rune(text)), time.Since(start).Round(time.Millisecond))
	return text, nil
}

// generateOpenAI 使用OpenAI兼容的流式接口
func (p *Provider) generateOpenAI(ctx context.Context, parts []vision.Part) (string, error) {
	if p.config.APIKey == "" || strings.HasPrefix(p.config.APIKey, "your_") {
		return "", errors.New(errors.KindModel, opGenerate, "API key is not configured")
	}

	content := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch part.Kind {
		case vision.PartText:
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case vision.PartImage:
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    part.Image.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}

	stream, err := p.openaiClient.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: p.config.ModelName,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: content,
		}},
		Stream:      true,
		MaxTokens:   p.config.MaxTokens,
		Temperature: float32(p.config.Temperature),
		TopP:        float32(p.config.TopP),
	})
	if err != nil {
		return "", modelError(err)
	}
	defer stream.Close()

	var filter thinkFilter
	for {
		response, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", modelError(err)
		}
		if len(response.Choices) > 0 {
			filter.Write(response.Choices[0].Delta.Content)
		}
	}
	return filter.String(), nil
}

// generateOllama 使用Ollama /api/chat 流式接口
func (p *Provider) generateOllama(ctx context.Context, parts []vision.Part) (string, error) {
	message := OllamaMessage{Role: "user"}
	for _, part := range parts {
		switch part.Kind {
		case vision.PartText:
			message.Content = part.Text
		case vision.PartImage:
			message.Images = append(message.Images, part.Image.Base64())
		}
	}

	options := map[string]interface{}{
		"temperature": p.config.Temperature,
		"top_p":       p.config.TopP,
	}
	if p.config.MaxTokens > 0 {
		options["num_predict"] = p.config.MaxTokens
	}
	requestBody, err := json.Marshal(OllamaRequest{
		Model:    p.config.ModelName,
		Messages: []OllamaMessage{message},
		Stream:   true,
		Options:  options,
	})
	if err != nil {
		return "", errors.Wrap(errors.KindModel, opGenerate, "failed to encode request", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return "", errors.Wrap(errors.KindModel, opGenerate, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", modelError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.New(errors.KindModel, opGenerate,
			fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	decoder := json.NewDecoder(resp.Body)
	var filter thinkFilter
	for {
		var chunk OllamaResponse
		if err := decoder.Decode(&chunk); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return "", errors.Wrap(errors.KindModel, opGenerate, "failed to decode ollama response", err)
		}
		if chunk.Error != "" {
			return "", errors.New(errors.KindModel, opGenerate, chunk.Error)
		}
		filter.Write(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}
	return filter.String(), nil
}

// modelError converts transport and API failures into a user-facing KindModel error.
func modelError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			msg = "quota exceeded: " + msg
		}
		return errors.Wrap(errors.KindModel, opGenerate, msg, err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return errors.Wrap(errors.KindModel, opGenerate,
			fmt.Sprintf("model endpoint returned %d", reqErr.HTTPStatusCode), err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.KindModel, opGenerate, "model request timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.KindModel, opGenerate, "model request canceled", err)
	}
	return errors.Wrap(errors.KindModel, opGenerate, "model request failed", err)
}

// thinkFilter drops <think>...</think> segments from streamed content.
// Tags are matched within a single chunk.
type thinkFilter struct {
	inThink bool
	out     strings.Builder
}

func (f *thinkFilter) Write(chunk string) {
	for chunk != "" {
		if f.inThink {
			i := strings.Index(chunk, "</think>")
			if i < 0 {
				return
			}
			chunk = chunk[i+len("</think>"):]
			f.inThink = false
			continue
		}
		i := strings.Index(chunk, "<think>")
		if i < 0 {
			f.out.WriteString(chunk)
			return
		}
		f.out.WriteString(chunk[:i])
		chunk = chunk[i+len("<think>"):]
		f.inThink = true
	}
}

func (f *thinkFilter) String() string {
	return f.out.String()
}
