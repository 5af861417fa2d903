package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/gosuda/callsim/internal/call"
	"github.com/gosuda/callsim/internal/domain"
)

// DefaultOpenRouterURL is the OpenRouter chat completions base URL.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// ChatGenerator produces caller lines through an OpenAI-compatible chat
// completions endpoint.
type ChatGenerator struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	limiter     *rate.Limiter
}

var _ call.Generator = (*ChatGenerator)(nil)

// GeneratorOption configures a ChatGenerator.
type GeneratorOption func(*ChatGenerator)

func WithBaseURL(url string) GeneratorOption {
	return func(g *ChatGenerator) { g.baseURL = strings.TrimRight(url, "/") }
}

func WithSampling(temperature float64, maxTokens int) GeneratorOption {
	return func(g *ChatGenerator) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

func WithHTTPClient(c *http.Client) GeneratorOption {
	return func(g *ChatGenerator) { g.httpClient = c }
}

// WithRequestsPerMinute caps outbound requests. Zero disables the cap.
func WithRequestsPerMinute(rpm int) GeneratorOption {
	return func(g *ChatGenerator) {
		if rpm <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60), max(1, rpm/10))
	}
}

func NewChatGenerator(apiKey, model string, opts ...GeneratorOption) *ChatGenerator {
	g := &ChatGenerator{
		apiKey:      apiKey,
		baseURL:     DefaultOpenRouterURL,
		model:       model,
		temperature: 0.8,
		maxTokens:   150,
		httpClient:  &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateReply asks the model for the caller's next line. The model plays
// the caller, so caller turns are sent as assistant messages.
func (g *ChatGenerator) GenerateReply(ctx context.Context, req call.ReplyRequest) (call.Reply, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: rate limit: %w", err)
		}
	}

	messages := make([]chatMessage, 0, len(req.History)+1)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt(req)})
	for _, turn := range req.History {
		role := "user"
		if turn.Role == domain.RoleCaller {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Text})
	}

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(msg)), call.ErrCollaborator)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return call.Reply{}, fmt.Errorf("backends.ChatGenerator.GenerateReply: no choices: %w", call.ErrCollaborator)
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	return call.Reply{
		Text:           text,
		EmotionalState: call.NextEmotionalState(text, req.CurrentState),
		Confidence:     0.9,
	}, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func systemPrompt(req call.ReplyRequest) string {
	p := req.CallerProfile
	s := req.Scenario.Script

	age := "Unknown"
	if p.Age > 0 {
		age = strconv.Itoa(p.Age)
	}

	var b strings.Builder
	b.WriteString("You are roleplaying as a 911 caller in a training simulation.\n\n")
	b.WriteString("Caller Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(p.Name, "Anonymous"))
	fmt.Fprintf(&b, "- Age: %s\n", age)
	fmt.Fprintf(&b, "- Background: %s\n", orDefault(p.BackgroundStory, "N/A"))
	fmt.Fprintf(&b, "- Personality: %s\n", strings.Join(p.PersonalityTraits, ", "))
	if p.CommunicationStyle != "" {
		fmt.Fprintf(&b, "- Communication style: %s\n", p.CommunicationStyle)
	}
	b.WriteString("\nCurrent Situation:\n")
	b.WriteString(s.InitialSituation)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Emergency Type: %s\n", orDefault(s.EmergencyType, "Unknown"))
	fmt.Fprintf(&b, "Location: %s\n\n", orDefault(s.LocationType, "Unknown"))
	fmt.Fprintf(&b, "Current Emotional State: %s\n\n", req.CurrentState)
	b.WriteString(`Instructions:
1. Stay in character as the caller
2. Respond naturally and realistically to the operator's questions
3. Show appropriate emotion based on your current state
4. Gradually reveal information as the operator asks questions
5. Keep responses brief (1-3 sentences) as in a real emergency call
6. Show stress, fear, or confusion appropriate to the situation
7. Do not volunteer all information at once - make the operator work for it

Respond only as the caller would speak on the phone. Do not include stage directions or explanations.`)

	return b.String()
}
