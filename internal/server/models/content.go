package models

// ResumeContent is the normalized shape of one parsed resume. Every field is
// always present after normalization: missing values are explicit zero
// values, never null, so downstream consumers never branch on absence.
type ResumeContent struct {
	FullName string `json:"full_name"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`

	Work      []WorkEntry      `json:"work"`
	Education []EducationEntry `json:"education"`
	Skills    []string         `json:"skills"`
}

// WorkEntry is one work-history item.
type WorkEntry struct {
	Company     string `json:"company"`
	Role        string `json:"role"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}

// EducationEntry is one education item.
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}
