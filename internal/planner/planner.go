// Package planner turns crawl output and user preferences into a structured
// rebuild plan via the external reasoning service. The service is treated as
// untrusted and non-deterministic: wrapping artifacts are stripped, the JSON
// is extracted by brace matching, and the result is validated against the
// expected schema before anything is persisted.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/prompts"
)

// ErrInvalidPlan marks reasoning-service output that failed schema
// validation. The planning phase fails with a validation error rather than
// silently accepting partial data.
var ErrInvalidPlan = errors.New("invalid plan from reasoning service")

// allowedComponentTypes is the fixed component vocabulary the generator
// understands. Anything outside it is a validation failure.
var allowedComponentTypes = map[string]bool{
	"hero": true, "navbar": true, "footer": true, "text_section": true,
	"image_gallery": true, "feature_grid": true, "contact_form": true,
	"testimonial": true, "pricing_table": true, "faq": true,
	"cta_banner": true, "article_list": true,
}

var allowedRedirectCodes = map[int]bool{301: true, 302: true, 307: true, 308: true}

// Config holds configuration for the planning service.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	SamplePages int
}

// Service handles rebuild plan generation using the reasoning service.
type Service struct {
	client      *resty.Client
	model       string
	endpoint    string
	maxTokens   int
	temperature float32
	samplePages int
}

// New creates a new planning service.
// Parameters:
//   - cfg: reasoning-service configuration including model and API key.
// Returns:
//   - *Service: initialized planning client wrapper.
func New(cfg *Config) *Service {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Set timeout to prevent hanging requests
	client.SetTimeout(120 * time.Second)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	endpoint := baseURL + "/chat/completions"

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	samplePages := cfg.SamplePages
	if samplePages <= 0 {
		samplePages = 8
	}

	return &Service{
		client:      client,
		model:       cfg.Model,
		endpoint:    endpoint,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		samplePages: samplePages,
	}
}

// GetModel returns the model name being used.
// Parameters: none.
// Returns:
//   - string: model identifier.
func (s *Service) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
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

// planInput is the JSON document sent to the reasoning service alongside the
// system prompt.
type planInput struct {
	Pages []domain.PageSummary `json:"pages"`
	Brief domain.UserBrief     `json:"brief"`
}

// GeneratePlan produces a validated rebuild plan from crawl output.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - pages: page summaries from the deep crawl; the home page plus the
//     top-ranked pages by inbound links are sampled to bound cost.
//   - brief: user preferences.
// Returns:
//   - *domain.RebuildPlan: validated plan.
//   - error: transport failures as-is; malformed output wrapped in
//     ErrInvalidPlan.
func (s *Service) GeneratePlan(ctx context.Context, pages []domain.PageSummary, brief domain.UserBrief) (*domain.RebuildPlan, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages to plan from", ErrInvalidPlan)
	}

	sample := SamplePages(pages, s.samplePages)

	input, err := json.Marshal(planInput{Pages: sample, Brief: brief})
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan input: %w", err)
	}

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.PlanSystemPrompt},
			{Role: "user", Content: prompts.PlanUserPromptHeader + "\n" + string(input)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call reasoning service: %w", err)
	}

	// Check HTTP status code
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return nil, fmt.Errorf("reasoning service returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("reasoning service error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("no response from reasoning service (status: %d)", httpResp.StatusCode())
	}

	plan, err := ParsePlan(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	if err := ValidatePlan(plan, sample); err != nil {
		return nil, err
	}

	return plan, nil
}

// SamplePages selects the representative page sample sent to the reasoning
// service: the first page (the crawl root) plus the top pages by inbound
// link count. Sampling bounds cost and payload size on large sites.
// Parameters:
//   - pages: full crawl output; the root is assumed first.
//   - limit: maximum sample size.
// Returns:
//   - []domain.PageSummary: bounded sample preserving the root first.
func SamplePages(pages []domain.PageSummary, limit int) []domain.PageSummary {
	if len(pages) <= limit {
		return pages
	}

	rest := make([]domain.PageSummary, len(pages)-1)
	copy(rest, pages[1:])
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].InboundLinks > rest[j].InboundLinks
	})

	sample := make([]domain.PageSummary, 0, limit)
	sample = append(sample, pages[0])
	sample = append(sample, rest[:limit-1]...)
	return sample
}

// ParsePlan extracts and decodes the plan JSON from raw model output.
// Wrapping artifacts (markdown fences, think tags, prose) are stripped; the
// JSON object is located by brace matching.
// Parameters:
//   - content: raw reasoning-service output.
// Returns:
//   - *domain.RebuildPlan: decoded plan, not yet validated.
//   - error: ErrInvalidPlan-wrapped error if no well-formed JSON is found.
func ParsePlan(content string) (*domain.RebuildPlan, error) {
	// Strip think tags some models emit before the answer.
	if start := strings.Index(content, "<think>"); start != -1 {
		if end := strings.Index(content, "</think>"); end != -1 {
			content = content[end+len("</think>"):]
		}
	}

	// Strip markdown code fences.
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")

	// Find JSON start
	jsonStart := strings.Index(content, "{")
	if jsonStart == -1 {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrInvalidPlan)
	}

	// Find matching closing brace
	braceCount := 0
	jsonEnd := -1
	inString := false
	escaped := false
findJSON:
	for i := jsonStart; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				braceCount++
			}
		case '}':
			if !inString {
				braceCount--
				if braceCount == 0 {
					jsonEnd = i + 1
					break findJSON
				}
			}
		}
	}

	if jsonEnd == -1 {
		return nil, fmt.Errorf("%w: incomplete JSON in response", ErrInvalidPlan)
	}

	var plan domain.RebuildPlan
	if err := json.Unmarshal([]byte(content[jsonStart:jsonEnd]), &plan); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %v", ErrInvalidPlan, err)
	}

	return &plan, nil
}

// ValidatePlan checks a decoded plan against the schema contract. Ambiguous
// or conflicting output, such as a plan page referencing a URL outside the
// sample, is a validation failure rather than something to repair.
// Parameters:
//   - plan: decoded plan.
//   - sample: the page sample the plan was generated from.
// Returns:
//   - error: ErrInvalidPlan-wrapped error naming the first violation.
func ValidatePlan(plan *domain.RebuildPlan, sample []domain.PageSummary) error {
	if len(plan.Pages) == 0 {
		return fmt.Errorf("%w: plan contains no pages", ErrInvalidPlan)
	}

	sampled := make(map[string]bool, len(sample))
	for _, page := range sample {
		sampled[page.URL] = true
	}

	routes := make(map[string]bool, len(plan.Routes))
	for _, route := range plan.Routes {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("%w: route %q is not an absolute path", ErrInvalidPlan, route)
		}
		routes[route] = true
	}

	seenRoutes := map[string]bool{}
	for _, page := range plan.Pages {
		if !sampled[page.SourceURL] {
			return fmt.Errorf("%w: page references unsampled url %q", ErrInvalidPlan, page.SourceURL)
		}
		if !strings.HasPrefix(page.Route, "/") {
			return fmt.Errorf("%w: page route %q is not an absolute path", ErrInvalidPlan, page.Route)
		}
		if seenRoutes[page.Route] {
			return fmt.Errorf("%w: duplicate route %q", ErrInvalidPlan, page.Route)
		}
		seenRoutes[page.Route] = true
		if !routes[page.Route] {
			return fmt.Errorf("%w: page route %q missing from route list", ErrInvalidPlan, page.Route)
		}
		if len(page.Components) == 0 {
			return fmt.Errorf("%w: page %q has no components", ErrInvalidPlan, page.Route)
		}
		for _, component := range page.Components {
			if !allowedComponentTypes[component.Type] {
				return fmt.Errorf("%w: unknown component type %q on %q", ErrInvalidPlan, component.Type, page.Route)
			}
		}
	}

	for _, redirect := range plan.Redirects {
		if !allowedRedirectCodes[redirect.RedirectCode] {
			return fmt.Errorf("%w: redirect code %d not allowed", ErrInvalidPlan, redirect.RedirectCode)
		}
		if !routes[redirect.TargetRoute] {
			return fmt.Errorf("%w: redirect targets unknown route %q", ErrInvalidPlan, redirect.TargetRoute)
		}
	}

	return nil
}
