package planner

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sheenhq/sitesmith/internal/domain"
)

func samplePages() []domain.PageSummary {
	return []domain.PageSummary{
		{URL: "https://example.com/", Title: "Home", InboundLinks: 9},
		{URL: "https://example.com/about", Title: "About", InboundLinks: 3},
		{URL: "https://example.com/contact", Title: "Contact", InboundLinks: 1},
	}
}

func validPlan() *domain.RebuildPlan {
	return &domain.RebuildPlan{
		Pages: []domain.PlannedPage{
			{
				SourceURL: "https://example.com/",
				Route:     "/",
				Title:     "Home",
				Components: []domain.PlannedComponent{
					{Type: "hero", Role: "header"},
					{Type: "footer", Role: "footer"},
				},
			},
			{
				SourceURL: "https://example.com/about",
				Route:     "/about",
				Title:     "About",
				Components: []domain.PlannedComponent{
					{Type: "text_section", Role: "body"},
				},
			},
		},
		Routes: []string{"/", "/about"},
		Redirects: []domain.PlannedRedirect{
			{SourceURL: "https://example.com/about.html", TargetRoute: "/about", RedirectCode: 301},
		},
	}
}

func TestParsePlan(t *testing.T) {
	raw := `{"pages":[{"source_url":"https://example.com/","route":"/","title":"Home","components":[{"type":"hero","role":"header"}]}],"routes":["/"],"design":{}}`

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "bare json",
			content: raw,
		},
		{
			name:    "markdown fenced",
			content: "```json\n" + raw + "\n```",
		},
		{
			name:    "think tags before json",
			content: "<think>\nreasoning about the site\n</think>\n" + raw,
		},
		{
			name:    "prose around json",
			content: "Here is the plan:\n" + raw + "\nLet me know if you need changes.",
		},
		{
			name:    "braces inside strings",
			content: `{"pages":[{"source_url":"https://example.com/","route":"/","title":"a { b } c","components":[{"type":"hero","role":"x"}]}],"routes":["/"],"design":{}}`,
		},
		{
			name:    "no json at all",
			content: "I could not produce a plan for this site.",
			wantErr: true,
		},
		{
			name:    "truncated json",
			content: `{"pages":[{"source_url":"https://example.com/"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.content)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidPlan) {
					t.Errorf("expected ErrInvalidPlan, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(plan.Pages) != 1 {
				t.Fatalf("expected 1 page, got %d", len(plan.Pages))
			}
			if plan.Pages[0].Route != "/" {
				t.Errorf("expected route /, got %q", plan.Pages[0].Route)
			}
		})
	}
}

func TestValidatePlan(t *testing.T) {
	sample := samplePages()

	tests := []struct {
		name    string
		mutate  func(*domain.RebuildPlan)
		wantErr bool
	}{
		{
			name:   "valid plan",
			mutate: func(*domain.RebuildPlan) {},
		},
		{
			name: "page references unsampled url",
			mutate: func(p *domain.RebuildPlan) {
				p.Pages[1].SourceURL = "https://example.com/invented"
			},
			wantErr: true,
		},
		{
			name: "unknown component type",
			mutate: func(p *domain.RebuildPlan) {
				p.Pages[0].Components[0].Type = "carousel3000"
			},
			wantErr: true,
		},
		{
			name: "relative route",
			mutate: func(p *domain.RebuildPlan) {
				p.Pages[1].Route = "about"
			},
			wantErr: true,
		},
		{
			name: "duplicate route",
			mutate: func(p *domain.RebuildPlan) {
				p.Pages[1].Route = "/"
			},
			wantErr: true,
		},
		{
			name: "page route missing from route list",
			mutate: func(p *domain.RebuildPlan) {
				p.Routes = []string{"/"}
			},
			wantErr: true,
		},
		{
			name: "page without components",
			mutate: func(p *domain.RebuildPlan) {
				p.Pages[0].Components = nil
			},
			wantErr: true,
		},
		{
			name: "disallowed redirect code",
			mutate: func(p *domain.RebuildPlan) {
				p.Redirects[0].RedirectCode = 303
			},
			wantErr: true,
		},
		{
			name: "redirect to unknown route",
			mutate: func(p *domain.RebuildPlan) {
				p.Redirects[0].TargetRoute = "/missing"
			},
			wantErr: true,
		},
		{
			name: "empty plan",
			mutate: func(p *domain.RebuildPlan) {
				p.Pages = nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := validPlan()
			tt.mutate(plan)

			err := ValidatePlan(plan, sample)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidPlan) {
					t.Errorf("expected ErrInvalidPlan, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSamplePages(t *testing.T) {
	pages := []domain.PageSummary{
		{URL: "https://example.com/", InboundLinks: 0},
		{URL: "https://example.com/a", InboundLinks: 5},
		{URL: "https://example.com/b", InboundLinks: 9},
		{URL: "https://example.com/c", InboundLinks: 2},
		{URL: "https://example.com/d", InboundLinks: 7},
	}

	sample := SamplePages(pages, 3)
	if len(sample) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(sample))
	}
	// The crawl root stays first even with zero inbound links.
	if sample[0].URL != "https://example.com/" {
		t.Errorf("expected root first, got %q", sample[0].URL)
	}
	if sample[1].URL != "https://example.com/b" || sample[2].URL != "https://example.com/d" {
		t.Errorf("expected top inbound pages, got %q and %q", sample[1].URL, sample[2].URL)
	}

	// Under the limit, everything is kept as-is.
	all := SamplePages(pages, 10)
	if len(all) != len(pages) {
		t.Errorf("expected all %d pages, got %d", len(pages), len(all))
	}
}

// chatCompletion wraps plan JSON in an OpenAI-style response body.
func chatCompletion(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	return body
}

func TestGeneratePlan(t *testing.T) {
	plan := validPlan()
	planJSON, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("failed to marshal plan: %v", err)
	}

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletion(t, "```json\n"+string(planJSON)+"\n```"))
	}))
	defer server.Close()

	svc := New(&Config{
		Model:       "test-model",
		APIKey:      "test-key",
		BaseURL:     server.URL,
		SamplePages: 8,
	})

	got, err := svc.GeneratePlan(t.Context(), samplePages(), domain.UserBrief{Goal: "modernize"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 request, got %d", requests)
	}
	if len(got.Pages) != 2 {
		t.Errorf("expected 2 planned pages, got %d", len(got.Pages))
	}
}

func TestGeneratePlanRejectsInvalidOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletion(t, `{"pages":[{"source_url":"https://example.com/invented","route":"/x","components":[{"type":"hero","role":"h"}]}],"routes":["/x"]}`))
	}))
	defer server.Close()

	svc := New(&Config{Model: "test-model", APIKey: "k", BaseURL: server.URL})

	_, err := svc.GeneratePlan(t.Context(), samplePages(), domain.UserBrief{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestGeneratePlanEmptyInput(t *testing.T) {
	svc := New(&Config{Model: "test-model"})
	_, err := svc.GeneratePlan(t.Context(), nil, domain.UserBrief{})
	if !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("expected ErrInvalidPlan for empty input, got %v", err)
	}
}
