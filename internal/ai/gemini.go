package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/models"
)

const geminiEndpointFmt = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// Gemini calls the hosted generative-language API. Errors are returned to
// the caller; degrading to the fallback is the Gateway's job.
type Gemini struct {
	apiKey   string
	endpoint string
	timeout  time.Duration
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		apiKey:   apiKey,
		endpoint: fmt.Sprintf(geminiEndpointFmt, model),
		timeout:  30 * time.Second,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// buildRequest maps the role-tagged history plus the new user turn into the
// hosted model's chat shape with fixed generation and safety parameters.
func buildRequest(message string, history []models.ChatTurn) geminiRequest {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		role := "model"
		if turn.Role == "user" {
			role = "user"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: message}},
	})

	return geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
		SafetySettings: []geminiSafetySetting{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		},
	}
}

// parseResponse extracts the first candidate's text.
func parseResponse(body []byte) (string, error) {
	var out geminiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("gemini response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("gemini response: no candidate text")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (g *Gemini) Generate(ctx context.Context, message string, history []models.ChatTurn) (string, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	req.Header.SetMethod(fiber.MethodPost)
	req.SetRequestURI(g.endpoint)
	req.Header.Set("X-goog-api-key", g.apiKey)
	agent.JSON(buildRequest(message, history))
	agent.Timeout(g.timeout)

	if err := agent.Parse(); err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("gemini request: %w", errs[0])
	}
	if code != fiber.StatusOK {
		return "", fmt.Errorf("gemini api error: status %d", code)
	}
	return parseResponse(body)
}
