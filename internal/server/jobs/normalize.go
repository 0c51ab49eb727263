package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

// Caps applied during normalization. These are policy, not correctness,
// constraints; what matters is that they are applied deterministically so
// repeated normalization of the same input is byte-identical.
const (
	maxSummaryRunes     = 2000
	maxDescriptionRunes = 1000
	maxWorkEntries      = 20
	maxEducationEntries = 10
	maxSkills           = 50
)

// Normalize validates the raw vendor output against the resume schema and
// produces the canonical stored form. Missing fields become explicit zero
// values, never null; oversized fields are truncated; collections are capped.
// A payload that does not decode into the schema is a job failure, not a
// transport error.
func Normalize(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty extraction output", common.ErrTerminalJobFailure)
	}

	var content models.ResumeContent
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&content); err != nil {
		// Unknown fields are tolerated on a second, lenient pass; only a
		// type-level mismatch rejects the payload.
		if err2 := json.Unmarshal(raw, &content); err2 != nil {
			return nil, fmt.Errorf("%w: extraction output does not match schema: %v", common.ErrTerminalJobFailure, err2)
		}
	}

	content.FullName = strings.TrimSpace(content.FullName)
	content.Headline = strings.TrimSpace(content.Headline)
	content.Summary = truncate(strings.TrimSpace(content.Summary), maxSummaryRunes)
	content.Email = strings.TrimSpace(content.Email)
	content.Phone = strings.TrimSpace(content.Phone)
	content.Address = strings.TrimSpace(content.Address)

	if len(content.Work) > maxWorkEntries {
		content.Work = content.Work[:maxWorkEntries]
	}
	for i := range content.Work {
		content.Work[i].Company = strings.TrimSpace(content.Work[i].Company)
		content.Work[i].Role = strings.TrimSpace(content.Work[i].Role)
		content.Work[i].Description = truncate(strings.TrimSpace(content.Work[i].Description), maxDescriptionRunes)
	}
	if content.Work == nil {
		content.Work = []models.WorkEntry{}
	}

	if len(content.Education) > maxEducationEntries {
		content.Education = content.Education[:maxEducationEntries]
	}
	for i := range content.Education {
		content.Education[i].Institution = strings.TrimSpace(content.Education[i].Institution)
		content.Education[i].Degree = strings.TrimSpace(content.Education[i].Degree)
	}
	if content.Education == nil {
		content.Education = []models.EducationEntry{}
	}

	if len(content.Skills) > maxSkills {
		content.Skills = content.Skills[:maxSkills]
	}
	for i := range content.Skills {
		content.Skills[i] = strings.TrimSpace(content.Skills[i])
	}
	if content.Skills == nil {
		content.Skills = []string{}
	}

	out, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized content: %w", err)
	}
	return out, nil
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
