// Package feedback renders score records into the email sent back to candidates.
package feedback

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

// Subject is the subject line of every feedback email
const Subject = "Your Resume Score & Feedback"

var bodyTemplate = template.Must(template.New("feedback").Funcs(template.FuncMap{
	"yesNo":      yesNo,
	"goodOrNeed": goodOrNeedsImprovement,
	"percent":    percent,
}).Parse(`
Hi {{.Name}},

Thanks for submitting your resume. Here is your personalized feedback:

CV Score: {{.Score.TotalScore}} / 100
- JD Match Score: {{percent .Score.MatchScore}}%
- Years of Experience: {{.Score.YearsExperience}}
- Relevant AI Experience: {{yesNo .Score.HasAIExperience}}
- Formatting Quality: {{goodOrNeed .Score.FormattingOK}}

We're excited by your interest and wish you the best!

Warmly,
The Resume AI Agent Team
`))

// DisplayName returns the part of a sender identifier before the first "@"
func DisplayName(sender string) string {
	if i := strings.Index(sender, "@"); i >= 0 {
		return sender[:i]
	}
	return sender
}

// Compose renders the feedback message for one candidate
func Compose(to, name string, score models.ScoreRecord) models.FeedbackMessage {
	var sb strings.Builder
	// the template only reads plain fields, Execute cannot fail here
	_ = bodyTemplate.Execute(&sb, struct {
		Name  string
		Score models.ScoreRecord
	}{Name: name, Score: score})

	return models.FeedbackMessage{
		To:      to,
		Subject: Subject,
		Body:    sb.String(),
	}
}

// percent prints the shortest form of v that keeps at least one decimal: 0.0, 12.5, 37.42
func percent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func goodOrNeedsImprovement(b bool) string {
	if b {
		return "Good"
	}
	return "Needs Improvement"
}
