package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/prompts"
)

// EvaluatorService calls an OpenAI-compatible API for transcription and
// answer evaluation.
type EvaluatorService struct {
	client  *resty.Client
	model   string
	baseURL string
}

// EvaluatorConfig holds configuration for the evaluator service.
type EvaluatorConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewEvaluatorService creates a new evaluator service.
// Parameters:
//   - cfg: LLM configuration including provider, model, and API key.
// Returns:
//   - *EvaluatorService: initialized LLM client wrapper.
func NewEvaluatorService(cfg *EvaluatorConfig) *EvaluatorService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	// Evaluation calls can run long on large transcripts
	client.SetTimeout(120 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &EvaluatorService{
		client:  client,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends media bytes to the speech endpoint and returns the
// transcript text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - media: raw audio/video bytes of one segment.
//   - filename: object name hint passed to the API (extension matters).
// Returns:
//   - string: transcript text.
//   - error: non-nil if the API request fails.
func (s *EvaluatorService) Transcribe(ctx context.Context, media []byte, filename string) (string, error) {
	var result transcriptionResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(media)).
		SetFormData(map[string]string{
			"model":  "whisper-1",
			"prompt": prompts.TranscriptionPrompt,
		}).
		SetResult(&result).
		Post(s.baseURL + "/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcription API error: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	return result.Text, nil
}

// EvaluationResult is the parsed evaluator output.
type EvaluationResult struct {
	Feedback        json.RawMessage
	HireInclination string
}

// Evaluate scores transcribed answers against the track's questions.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trackTitle: human-readable track name for the prompt.
//   - questions: prompts the candidate was asked.
//   - segments: transcribed answer segments.
// Returns:
//   - *EvaluationResult: raw feedback document and hire inclination.
//   - error: non-nil if the API request fails or output is malformed.
func (s *EvaluatorService) Evaluate(ctx context.Context, trackTitle string, questions domain.PromptList, segments domain.SegmentList) (*EvaluationResult, error) {
	var block strings.Builder
	for _, q := range questions {
		block.WriteString(fmt.Sprintf("Q [%s]: %s\n", q.ID, q.Text))
		for _, seg := range segments {
			if seg.PromptID == q.ID {
				block.WriteString(fmt.Sprintf("A: %s\n", seg.TranscriptText))
			}
		}
		block.WriteString("\n")
	}

	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.EvaluatorSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(prompts.EvaluatorUserTemplate, trackTitle, block.String())},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	var result chatResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&result).
		Post(s.baseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("evaluation request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("evaluation API error: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		return nil, fmt.Errorf("evaluation API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("evaluation API returned no choices")
	}

	content := result.Choices[0].Message.Content
	parsed, err := parseEvaluation(content)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// parseEvaluation validates the evaluator's JSON output and extracts the
// hire inclination.
func parseEvaluation(content string) (*EvaluationResult, error) {
	// Some models wrap JSON in code fences despite instructions
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var doc struct {
		HireInclination string `json:"hire_inclination"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("evaluator returned malformed JSON: %w", err)
	}
	if doc.HireInclination == "" {
		return nil, fmt.Errorf("evaluator output missing hire_inclination")
	}

	return &EvaluationResult{
		Feedback:        json.RawMessage(content),
		HireInclination: doc.HireInclination,
	}, nil
}
