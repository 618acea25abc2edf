// Package topics はAI（Gemini）による面接トピック生成機能を提供する。
// プロンプトの組み立て、generateContent APIの呼び出し、応答の整形と検証を含む。
package topics

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/interviewagent/internal/metrics"
)

const (
	// DefaultEndpoint はGemini generateContent APIのエンドポイント。
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"
	// maxResponseBytes はレスポンスボディの読み取り上限（1MiB）。
	maxResponseBytes = 1 << 20
)

//go:embed prompts/topics_prompt.txt
var topicsPromptTemplate string

var (
	// ErrMissingText はレスポンスに候補テキストが含まれない場合のエラー。
	ErrMissingText = errors.New("topics: response did not contain candidate text")
	// ErrInvalidTopics は候補テキストが文字列のJSON配列でない場合のエラー。
	ErrInvalidTopics = errors.New("topics: candidate text is not a JSON array of strings")
	// ErrUpstreamStatus はAPIが200以外のステータスを返した場合のエラー。
	ErrUpstreamStatus = errors.New("topics: unexpected upstream status")
)

// Generator は面接トピック生成のインターフェース。
type Generator interface {
	GenerateTopics(ctx context.Context, jobPosition, jobDescription string) ([]string, error)
}

// Client はGemini APIのクライアント。
// 送信間隔はrate.Limiterで制御し、同時に複数の呼び出しがあっても順に送出する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithRequestInterval は外部API呼び出しの最小間隔を設定する。
// 0以下を指定した場合は間隔制御を行わない。
func WithRequestInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(collector metrics.MetricsCollector) Option {
	return func(c *Client) {
		if collector != nil {
			c.metrics = collector
		}
	}
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合はDefaultEndpointを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		metrics:    metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// generateRequest はgenerateContentのリクエストボディ。
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse はgenerateContentのレスポンスのうち利用する部分。
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateTopics は職種と職務内容から面接トピックの一覧を生成する。
// 応答テキストのMarkdownコードフェンスは除去し、文字列のJSON配列であることを検証する。
func (c *Client) GenerateTopics(ctx context.Context, jobPosition, jobDescription string) (topics []string, err error) {
	start := c.now()
	defer func() {
		c.metrics.RecordTopicGeneration(c.now().Sub(start), err)
	}()

	c.logger.Info("面接トピックを生成します", slog.String("job_position", jobPosition))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("トピック生成の送信待機が中断されました: %w", err)
	}

	text, err := c.callAPI(ctx, RenderPrompt(jobPosition, jobDescription))
	if err != nil {
		return nil, err
	}

	topics, err = ParseTopics(text)
	if err != nil {
		c.logger.Error("トピック生成の応答が不正です",
			slog.String("job_position", jobPosition),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.Info("面接トピックを生成しました",
		slog.String("job_position", jobPosition),
		slog.Int("topic_count", len(topics)),
	)
	return topics, nil
}

// callAPI はgenerateContent APIを呼び出し、最初の候補のテキストを返す。
func (c *Client) callAPI(ctx context.Context, prompt string) (string, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("key", c.apiKey)
	reqURL.RawQuery = q.Encode()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", redactURLError(err))
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Gemini APIを呼び出します", slog.Int("prompt_length", len(prompt)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.ErrorはAPIキーを含むURLを保持しているため、ログとエラーには内側のエラーのみを使う
		err = redactURLError(err)
		c.logger.Error("Gemini APIの呼び出しに失敗しました", slog.String("error", err.Error()))
		return "", fmt.Errorf("Gemini APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini APIがエラーステータスを返しました", slog.Int("http_status", resp.StatusCode))
		return "", fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", redactURLError(err))
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(decoded.Candidates) == 0 ||
		len(decoded.Candidates[0].Content.Parts) == 0 ||
		decoded.Candidates[0].Content.Parts[0].Text == nil {
		return "", ErrMissingText
	}
	return *decoded.Candidates[0].Content.Parts[0].Text, nil
}

// RenderPrompt はプロンプトテンプレートのプレースホルダーを置換する。
func RenderPrompt(jobPosition, jobDescription string) string {
	return strings.NewReplacer(
		"{jobPosition}", jobPosition,
		"{jobDescription}", jobDescription,
	).Replace(topicsPromptTemplate)
}

// ParseTopics はAIの応答テキストからトピック一覧を取り出す。
// 前後の空白と```json / ```フェンスを除去した結果が、空でない文字列のJSON配列である必要がある。
func ParseTopics(text string) ([]string, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var topics []string
	if err := json.Unmarshal([]byte(cleaned), &topics); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopics, err)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrInvalidTopics)
	}

	result := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		result = append(result, t)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: only blank topics", ErrInvalidTopics)
	}
	return result, nil
}

// redactURLError はurl.Errorから内側のエラーを取り出す。
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

// compile-time interface check
var _ Generator = (*Client)(nil)
