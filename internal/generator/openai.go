// Package generator produces deck/document text content from the
// structured answers stored on a generation task, using an
// OpenAI-compatible chat-completions API.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pitchbot/internal/models"
)

// Client calls the chat-completions endpoint and shapes the result into
// renderer-ready deck text.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a content-generation client. baseURL is overridable
// for tests.
func NewClient(apiKey, model, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// Generate builds the prompt for the task's kind, calls the model, and
// returns a title plus formatted deck text. An empty or malformed model
// response is an error; the caller treats it as a hard task failure.
func (c *Client) Generate(ctx context.Context, task models.GenerationTask) (string, string, error) {
	switch task.Kind {
	case models.KindPitchDeck:
		return c.generatePitchDeck(ctx, task)
	case models.KindPresentation:
		return c.generatePresentation(ctx, task)
	case models.KindWeeklyReport:
		return c.generateWeeklyReport(ctx, task)
	default:
		return "", "", fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func (c *Client) generatePitchDeck(ctx context.Context, task models.GenerationTask) (string, string, error) {
	var payload models.PitchDeckPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return "", "", fmt.Errorf("decode pitch deck payload: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are an expert startup consultant. Using the founder's answers below, ")
	sb.WriteString("write the content of a complete investor pitch deck. Respond with a JSON object ")
	sb.WriteString(`with these string fields: "project_name", "tagline", "problem", "solution", `)
	sb.WriteString(`"market", "business_model", "competition", "advantage", "financials", "team", `)
	sb.WriteString(`"milestones", "cta". Be concrete and persuasive.`)
	sb.WriteString("\n\nFounder answers:\n")
	for i, answer := range payload.Answers {
		question := ""
		if i < len(payload.Questions) {
			question = payload.Questions[i]
		}
		fmt.Fprintf(&sb, "%d. %s %s\n", i+1, question, answer)
	}

	var content pitchDeckContent
	if err := c.completeJSON(ctx, sb.String(), &content); err != nil {
		return "", "", err
	}
	if content.ProjectName == "" {
		return "", "", fmt.Errorf("model returned no project name")
	}
	return content.ProjectName, formatPitchDeck(content), nil
}

func (c *Client) generatePresentation(ctx context.Context, task models.GenerationTask) (string, string, error) {
	var payload models.PresentationPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return "", "", fmt.Errorf("decode presentation payload: %w", err)
	}

	prompt := fmt.Sprintf(
		`You are a professional presentation writer. Create the content of a %d-slide presentation on the topic %q. Additional details from the requester: %s. Respond with a JSON object: {"title": string, "subtitle": string, "slides": [{"title": string, "content": string, "bullet_points": [string]}]}. Produce exactly %d slides.`,
		payload.SlideCount, payload.Topic, payload.Details, payload.SlideCount)

	var content presentationContent
	if err := c.completeJSON(ctx, prompt, &content); err != nil {
		return "", "", err
	}
	if content.Title == "" || len(content.Slides) == 0 {
		return "", "", fmt.Errorf("model returned no slides")
	}
	return content.Title, formatPresentation(content), nil
}

func (c *Client) generateWeeklyReport(ctx context.Context, task models.GenerationTask) (string, string, error) {
	var payload models.WeeklyReportPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return "", "", fmt.Errorf("decode weekly report payload: %w", err)
	}

	prompt := fmt.Sprintf(
		`You are drafting a weekly work plan document for a community youth leader. Leader: %s, district: %s, week: %s. Planned tasks: %s. Respond with a JSON object: {"title": string, "sections": [{"heading": string, "body": string}]}. Expand each task into a professional plan section with goals and expected outcomes.`,
		payload.FullName, payload.District, payload.WeekDate, strings.Join(payload.Tasks, "; "))

	var content reportContent
	if err := c.completeJSON(ctx, prompt, &content); err != nil {
		return "", "", err
	}
	if content.Title == "" || len(content.Sections) == 0 {
		return "", "", fmt.Errorf("model returned no report sections")
	}
	return content.Title, formatWeeklyReport(content), nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// completeJSON sends one user message and unmarshals the model's JSON
// reply into out.
func (c *Client) completeJSON(ctx context.Context, prompt string, out any) error {
	reqBody, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &responseFmt{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat completion: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return fmt.Errorf("chat completion returned no content")
	}

	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("decode model content: %w", err)
	}
	return nil
}
