package feedback

import (
	"strings"
	"testing"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		sender string
		want   string
	}{
		{"jane@example.com", "jane"},
		{"first.last@x@y", "first.last"},
		{"no-at-sign", "no-at-sign"},
		{"@leading", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			if got := DisplayName(tt.sender); got != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.sender, got, tt.want)
			}
		})
	}
}

func TestCompose(t *testing.T) {
	score := models.ScoreRecord{
		MatchScore:      37.42,
		YearsExperience: 2,
		HasAIExperience: true,
		FormattingOK:    false,
		TotalScore:      58,
	}

	msg := Compose("jane@example.com", "jane", score)

	if msg.To != "jane@example.com" {
		t.Errorf("To = %q, want jane@example.com", msg.To)
	}
	if msg.Subject != Subject {
		t.Errorf("Subject = %q, want %q", msg.Subject, Subject)
	}

	wantLines := []string{
		"Hi jane,",
		"CV Score: 58 / 100",
		"- JD Match Score: 37.42%",
		"- Years of Experience: 2",
		"- Relevant AI Experience: Yes",
		"- Formatting Quality: Needs Improvement",
	}
	for _, line := range wantLines {
		if !strings.Contains(msg.Body, line) {
			t.Errorf("Body missing %q:\n%s", line, msg.Body)
		}
	}
}

func TestCompose_LabelMappings(t *testing.T) {
	msg := Compose("bob", "bob", models.ScoreRecord{FormattingOK: true})
	if !strings.Contains(msg.Body, "Relevant AI Experience: No") {
		t.Errorf("Expected AI label No:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "Formatting Quality: Good") {
		t.Errorf("Expected formatting label Good:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "JD Match Score: 0.0%") {
		t.Errorf("Expected zero match score rendering:\n%s", msg.Body)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{100, "100.0"},
		{12.5, "12.5"},
		{37.42, "37.42"},
	}

	for _, tt := range tests {
		if got := percent(tt.in); got != tt.want {
			t.Errorf("percent(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompose_TotalAboveHundredIsNotClamped(t *testing.T) {
	msg := Compose("a@b.c", "a", models.ScoreRecord{TotalScore: 170})
	if !strings.Contains(msg.Body, "CV Score: 170 / 100") {
		t.Errorf("Expected unclamped total:\n%s", msg.Body)
	}
}
