package models

// Task payloads are stored serialized on the task row so a restarted
// worker can resume from nothing but the database.

// PitchDeckPayload carries the questionnaire a pitch-deck task was built from.
type PitchDeckPayload struct {
	Questions []string `json:"questions"`
	Answers   []string `json:"answers"`
}

// PresentationPayload carries the inputs for a generic presentation task.
type PresentationPayload struct {
	Topic      string `json:"topic"`
	Details    string `json:"details"`
	SlideCount int    `json:"slide_count"`
}

// WeeklyReportPayload carries the inputs for a weekly report document.
type WeeklyReportPayload struct {
	FullName string   `json:"full_name"`
	District string   `json:"district"`
	WeekDate string   `json:"week_date"`
	Tasks    []string `json:"tasks"`
}
