package generator

import (
	"fmt"
	"strings"
)

// Content shapes returned by the model, one per task kind.

type pitchDeckContent struct {
	ProjectName   string `json:"project_name"`
	Tagline       string `json:"tagline"`
	Problem       string `json:"problem"`
	Solution      string `json:"solution"`
	Market        string `json:"market"`
	BusinessModel string `json:"business_model"`
	Competition   string `json:"competition"`
	Advantage     string `json:"advantage"`
	Financials    string `json:"financials"`
	Team          string `json:"team"`
	Milestones    string `json:"milestones"`
	CTA           string `json:"cta"`
}

type presentationContent struct {
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle"`
	Slides   []slide `json:"slides"`
}

type slide struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	BulletPoints []string `json:"bullet_points"`
}

type reportContent struct {
	Title    string    `json:"title"`
	Sections []section `json:"sections"`
}

type section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// formatPitchDeck lays the generated content out as renderer markdown:
// one card per "---" separator, fixed investor-deck section order.
func formatPitchDeck(content pitchDeckContent) string {
	sections := []struct {
		title string
		body  string
	}{
		{"PROBLEM", content.Problem},
		{"SOLUTION", content.Solution},
		{"MARKET", content.Market},
		{"BUSINESS MODEL", content.BusinessModel},
		{"COMPETITION", content.Competition},
		{"ADVANTAGES", content.Advantage},
		{"FINANCIALS", content.Financials},
		{"TEAM", content.Team},
		{"ROADMAP", content.Milestones},
		{"LET'S WORK TOGETHER", content.CTA},
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n%s\n", content.ProjectName, content.Tagline)
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n---\n\n## %s\n\n%s\n", s.title, s.body)
	}
	return strings.TrimSpace(sb.String())
}

// formatPresentation lays out a generic presentation, one slide per card.
func formatPresentation(content presentationContent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n%s\n", content.Title, content.Subtitle)
	for _, s := range content.Slides {
		fmt.Fprintf(&sb, "\n---\n\n## %s\n\n%s\n", s.Title, s.Content)
		for _, point := range s.BulletPoints {
			fmt.Fprintf(&sb, "- %s\n", point)
		}
	}
	return strings.TrimSpace(sb.String())
}

// formatWeeklyReport lays out a document-style weekly plan.
func formatWeeklyReport(content reportContent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", content.Title)
	for _, s := range content.Sections {
		fmt.Fprintf(&sb, "\n---\n\n## %s\n\n%s\n", s.Heading, s.Body)
	}
	return strings.TrimSpace(sb.String())
}
