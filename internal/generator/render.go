package generator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sheenhq/sitesmith/internal/domain"
)

// renderedFile is a single project file before upload.
type renderedFile struct {
	Path        string
	ContentType string
	Content     []byte
	// Pending lists component types the scaffold references but expects a
	// human to finish wiring.
	Pending []string
}

// routeToPagePath maps a planned route to a page module path inside the
// generated project. The root route becomes index; nested routes keep their
// directory structure.
func routeToPagePath(route string) string {
	trimmed := strings.Trim(route, "/")
	if trimmed == "" {
		return "src/pages/index.tsx"
	}
	return fmt.Sprintf("src/pages/%s.tsx", trimmed)
}

// componentName converts a component type like "feature_grid" to the
// exported identifier FeatureGrid used in the page module.
func componentName(componentType string) string {
	parts := strings.Split(componentType, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}

// renderProject renders the full file set for a plan. Output is
// deterministic for a given plan so repeated transformation attempts upload
// identical content.
func renderProject(projectName string, plan *domain.RebuildPlan) ([]renderedFile, error) {
	files := []renderedFile{}

	pkg, err := renderPackageJSON(projectName)
	if err != nil {
		return nil, err
	}
	files = append(files, pkg)

	cfg, err := renderSiteConfig(plan)
	if err != nil {
		return nil, err
	}
	files = append(files, cfg)

	files = append(files, renderThemeTokens(plan.Design))

	for _, page := range plan.Pages {
		files = append(files, renderPageModule(page))
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func renderPackageJSON(projectName string) (renderedFile, error) {
	manifest := map[string]any{
		"name":    projectName,
		"private": true,
		"scripts": map[string]string{
			"dev":   "next dev",
			"build": "next build",
			"start": "next start",
		},
		"dependencies": map[string]string{
			"next":      "^14.2.0",
			"react":     "^18.3.0",
			"react-dom": "^18.3.0",
		},
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return renderedFile{}, fmt.Errorf("failed to render package.json: %w", err)
	}
	return renderedFile{Path: "package.json", ContentType: "application/json", Content: append(data, '\n')}, nil
}

type siteConfigRedirect struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	StatusCode  int    `json:"statusCode"`
}

// renderSiteConfig emits the framework config carrying routes and the
// redirect table derived from the plan.
func renderSiteConfig(plan *domain.RebuildPlan) (renderedFile, error) {
	redirects := make([]siteConfigRedirect, 0, len(plan.Redirects))
	for _, redirect := range plan.Redirects {
		redirects = append(redirects, siteConfigRedirect{
			Source:      redirect.SourceURL,
			Destination: redirect.TargetRoute,
			StatusCode:  redirect.RedirectCode,
		})
	}

	cfg := map[string]any{
		"routes":    plan.Routes,
		"redirects": redirects,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return renderedFile{}, fmt.Errorf("failed to render site config: %w", err)
	}
	return renderedFile{Path: "site.config.json", ContentType: "application/json", Content: append(data, '\n')}, nil
}

// renderThemeTokens emits CSS custom properties from the design summary.
func renderThemeTokens(design domain.DesignSummary) renderedFile {
	var b strings.Builder
	b.WriteString(":root {\n")
	for i, color := range design.Palette {
		fmt.Fprintf(&b, "  --color-%d: %s;\n", i+1, color)
	}
	if design.FontHeading != "" {
		fmt.Fprintf(&b, "  --font-heading: %s;\n", design.FontHeading)
	}
	if design.FontBody != "" {
		fmt.Fprintf(&b, "  --font-body: %s;\n", design.FontBody)
	}
	for i, step := range design.SpacingScale {
		fmt.Fprintf(&b, "  --space-%d: %dpx;\n", i+1, step)
	}
	b.WriteString("}\n")
	return renderedFile{Path: "src/styles/tokens.css", ContentType: "text/css", Content: []byte(b.String())}
}

// renderPageModule emits one page component per planned page. Each planned
// component becomes a placeholder element carrying its role and description,
// and the full component list is recorded as pending follow-up work.
func renderPageModule(page domain.PlannedPage) renderedFile {
	pending := make([]string, 0, len(page.Components))
	seen := map[string]bool{}

	var b strings.Builder
	fmt.Fprintf(&b, "// Rebuilt from %s\n", page.SourceURL)
	fmt.Fprintf(&b, "export default function Page() {\n")
	fmt.Fprintf(&b, "  return (\n    <main>\n")
	for _, component := range page.Components {
		if !seen[component.Type] {
			seen[component.Type] = true
			pending = append(pending, component.Type)
		}
		name := componentName(component.Type)
		fmt.Fprintf(&b, "      {/* %s: %s */}\n", component.Role, component.Description)
		fmt.Fprintf(&b, "      <%s", name)
		keys := make([]string, 0, len(component.Attributes))
		for key := range component.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, " %s=%q", key, component.Attributes[key])
		}
		b.WriteString(" />\n")
	}
	fmt.Fprintf(&b, "    </main>\n  );\n}\n")

	return renderedFile{
		Path:        routeToPagePath(page.Route),
		ContentType: "text/plain",
		Content:     []byte(b.String()),
		Pending:     pending,
	}
}
