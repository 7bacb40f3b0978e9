package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/resume-feedback-agent/internal/agent"
	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

var scoreCmd = &cobra.Command{
	Use:   "score FILE...",
	Short: "Score local PDF/DOCX resumes against the job description without sending mail",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		a := agent.New(nil, nil, nil, cfg.JobDescription, agent.Options{}, log)
		results, err := scoreFiles(a, args)
		if err != nil {
			return err
		}

		log.Debug("scored local files", zap.Int("count", len(results)))
		return renderScores(cmd.OutOrStdout(), results)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

type scoredFile struct {
	Path     string
	Degraded bool
	Score    models.ScoreRecord
}

type evaluator interface {
	Evaluate(filename string, data []byte) (models.ScoreRecord, bool)
}

func scoreFiles(e evaluator, paths []string) ([]scoredFile, error) {
	results := make([]scoredFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		record, degraded := e.Evaluate(filepath.Base(path), data)
		results = append(results, scoredFile{Path: path, Degraded: degraded, Score: record})
	}
	return results, nil
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	degradedStyle = cellStyle.Foreground(lipgloss.Color("214"))
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderScores(w io.Writer, results []scoredFile) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FILE", "MATCH %", "YEARS", "AI", "FORMAT", "TOTAL", "DEGRADED")

	for _, r := range results {
		t.Row(
			r.Path,
			strconv.FormatFloat(r.Score.MatchScore, 'f', 2, 64),
			strconv.Itoa(r.Score.YearsExperience),
			yesNo(r.Score.HasAIExperience),
			yesNo(r.Score.FormattingOK),
			strconv.Itoa(r.Score.TotalScore),
			yesNo(r.Degraded),
		)
	}

	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if row >= 0 && row < len(results) && results[row].Degraded {
			return degradedStyle
		}
		return cellStyle
	})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
