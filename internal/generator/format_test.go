package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPitchDeck(t *testing.T) {
	text := formatPitchDeck(pitchDeckContent{
		ProjectName:   "RoboFarm",
		Tagline:       "Autonomous greenhouses",
		Problem:       "Labor shortage",
		Solution:      "Robots",
		Market:        "$4B",
		BusinessModel: "Hardware plus subscription",
		Competition:   "Manual farms",
		Advantage:     "Cheaper per hectare",
		Financials:    "Break-even in year two",
		Team:          "Two robotics PhDs",
		Milestones:    "Pilot in Q3",
		CTA:           "Join our seed round",
	})

	assert.True(t, strings.HasPrefix(text, "# RoboFarm"))
	assert.Contains(t, text, "Autonomous greenhouses")

	// Ten content cards follow the title card
	assert.Equal(t, 10, strings.Count(text, "\n---\n"))

	// Sections appear in investor-deck order
	for _, heading := range []string{
		"## PROBLEM", "## SOLUTION", "## MARKET", "## BUSINESS MODEL",
		"## COMPETITION", "## ADVANTAGES", "## FINANCIALS", "## TEAM",
		"## ROADMAP", "## LET'S WORK TOGETHER",
	} {
		assert.Contains(t, text, heading)
	}
	problemIdx := strings.Index(text, "## PROBLEM")
	teamIdx := strings.Index(text, "## TEAM")
	assert.Less(t, problemIdx, teamIdx)
}

func TestFormatPresentation(t *testing.T) {
	text := formatPresentation(presentationContent{
		Title:    "Go Concurrency",
		Subtitle: "Channels and goroutines",
		Slides: []slide{
			{Title: "Goroutines", Content: "Lightweight threads", BulletPoints: []string{"cheap", "scheduled by runtime"}},
			{Title: "Channels", Content: "Typed conduits"},
		},
	})

	assert.True(t, strings.HasPrefix(text, "# Go Concurrency"))
	assert.Equal(t, 2, strings.Count(text, "\n---\n"))
	assert.Contains(t, text, "## Goroutines")
	assert.Contains(t, text, "- cheap\n")
	assert.Contains(t, text, "- scheduled by runtime")
	assert.Contains(t, text, "## Channels")
}

func TestFormatWeeklyReport(t *testing.T) {
	text := formatWeeklyReport(reportContent{
		Title: "Weekly Plan: Aug 24-30",
		Sections: []section{
			{Heading: "Youth meetup", Body: "Organize the district meetup."},
			{Heading: "Reporting", Body: "Prepare the monthly summary."},
		},
	})

	assert.True(t, strings.HasPrefix(text, "# Weekly Plan: Aug 24-30"))
	assert.Equal(t, 2, strings.Count(text, "\n---\n"))
	assert.Contains(t, text, "## Youth meetup")
	assert.Contains(t, text, "Prepare the monthly summary.")
}
