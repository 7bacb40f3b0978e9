package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

// Fixed scoring policy
const (
	similarityWeight   = 0.5 // applied to the similarity percentage
	pointsPerYearMatch = 10
	aiBonus            = 20
	formattingBonus    = 20
	minFormattingWords = 100
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)
	// RE2 classes are ASCII-only; spell out Unicode digits, spaces and word boundaries.
	yearsPattern = regexp.MustCompile(`\p{Nd}+\+?[\s\p{Z}\x{85}]+years?`)
	aiPattern    = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(?:machine learning|ai|deep learning|nlp|neural)(?:$|[^\p{L}\p{N}_])`)
)

// Scorer scores resume texts against one job description.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	jobDescription string
}

// NewScorer creates a new scorer instance
func NewScorer(jobDescription string) *Scorer {
	return &Scorer{
		jobDescription: sanitizeUTF8(jobDescription),
	}
}

// JobDescription returns the text every resume is compared against
func (s *Scorer) JobDescription() string {
	return s.jobDescription
}

// Score computes the ScoreRecord for a resume text
func (s *Scorer) Score(text string) models.ScoreRecord {
	return Score(text, s.jobDescription)
}

// Score computes the ScoreRecord for text against jobDescription
func Score(text, jobDescription string) models.ScoreRecord {
	text = sanitizeUTF8(text)
	lower := strings.ToLower(text)

	similarity := CosineSimilarity(text, sanitizeUTF8(jobDescription))
	years := len(yearsPattern.FindAllString(lower, -1))
	hasAI := aiPattern.MatchString(lower)
	formattingOK := len(strings.Fields(text)) > minFormattingWords

	total := similarity*100*similarityWeight + float64(years*pointsPerYearMatch)
	if hasAI {
		total += aiBonus
	}
	if formattingOK {
		total += formattingBonus
	}

	return models.ScoreRecord{
		MatchScore:      math.Round(similarity*100*100) / 100,
		YearsExperience: years,
		HasAIExperience: hasAI,
		FormattingOK:    formattingOK,
		TotalScore:      int(total),
	}
}

// CosineSimilarity returns the cosine similarity of the TF-IDF vectors of a and b,
// with the vector space built from exactly those two documents
func CosineSimilarity(a, b string) float64 {
	docs := [][]string{tokenize(a), tokenize(b)}
	if len(docs[0]) == 0 || len(docs[1]) == 0 {
		return 0
	}

	counts := make([]map[string]float64, len(docs))
	df := make(map[string]int)
	for i, tokens := range docs {
		counts[i] = make(map[string]float64)
		for _, tok := range tokens {
			counts[i][tok]++
		}
		for term := range counts[i] {
			df[term]++
		}
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}

	vectors := make([]map[string]float64, len(docs))
	for i := range docs {
		vectors[i] = normalize(weight(counts[i], idf))
	}

	// iterate in sorted order so float summation is reproducible
	terms := make([]string, 0, len(vectors[0]))
	for term := range vectors[0] {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var dot float64
	for _, term := range terms {
		dot += vectors[0][term] * vectors[1][term]
	}

	return math.Max(0, math.Min(1, dot))
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func weight(counts, idf map[string]float64) map[string]float64 {
	v := make(map[string]float64, len(counts))
	for term, c := range counts {
		v[term] = c * idf[term]
	}
	return v
}

func normalize(v map[string]float64) map[string]float64 {
	terms := make([]string, 0, len(v))
	for term := range v {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var sum float64
	for _, term := range terms {
		sum += v[term] * v[term]
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for term := range v {
		v[term] /= norm
	}
	return v
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
