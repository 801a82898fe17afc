package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatgate/models"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var ErrEmptyResponse = errors.New("gemini returned an empty response")

const defaultTimeout = 30 * time.Second

// Client はGeminiのOpenAI互換エンドポイントを呼び出してテキストを生成します。
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(config models.GeminiConfig, logger *zap.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	// 呼び出し単位のタイムアウトはcontextで掛けるが、接続が残り続けないよう上限を持たせる
	apiConfig.HTTPClient = &http.Client{Timeout: timeout + 5*time.Second}

	return &Client{
		api:     openai.NewClientWithConfig(apiConfig),
		model:   config.Model,
		timeout: timeout,
		logger:  logger.With(zap.String("client", "gemini")),
	}
}

// Generate はプロンプトに対する返信を返します。空の返信はエラーとして扱う
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Warn("Generation failed", zap.Duration("latency", time.Since(start)), zap.Error(err))
		return "", fmt.Errorf("gemini api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("Generation completed",
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return text, nil
}
