package risk

import "strings"

// Input is the part of a feedback record the strategies look at
type Input struct {
	Rating      int
	Comment     string
	FoodQuality int
	WaitTime    int
	Attention   int
}

// Strategy is one heuristic in the classifier
type Strategy struct {
	Name    string
	Analyze func(Input) (Level, float64)
}

// Score is a single strategy's verdict, kept as the analysis trace
type Score struct {
	Strategy string
	Level    Level
	Value    float64
}

// Assessment is the outcome of Classify
type Assessment struct {
	Level Level
	Trace []Score
}

// Strategies is the fixed set run by Classify, in trace order
var Strategies = []Strategy{
	{Name: "score", Analyze: scoreStrategy},
	{Name: "keyword", Analyze: keywordStrategy},
	{Name: "aspect", Analyze: aspectStrategy},
}

// Classify runs every strategy and keeps the most severe level
func Classify(in Input) Assessment {
	a := Assessment{Level: Low, Trace: make([]Score, 0, len(Strategies))}
	for _, s := range Strategies {
		level, value := s.Analyze(in)
		a.Trace = append(a.Trace, Score{Strategy: s.Name, Level: level, Value: value})
		a.Level = Max(a.Level, level)
	}
	return a
}

func scoreStrategy(in Input) (Level, float64) {
	value := float64(in.Rating)
	switch {
	case in.Rating <= 2:
		return High, value
	case in.Rating == 3:
		return Medium, value
	default:
		return Low, value
	}
}

// High keywords are checked before medium ones. Matching is a
// case-insensitive substring scan.
var (
	highRiskKeywords = []string{
		"terrible", "awful", "disgusting", "horrible", "inedible", "unacceptable", "worst", "rude",
		"malo", "pésimo", "pésima", "desastre", "incomible", "asqueroso", "inaceptable", "fatal",
	}
	mediumRiskKeywords = []string{
		"slow", "cold", "lacking", "bland", "mediocre", "improve", "delayed", "lukewarm",
		"regular", "mejorar", "demorado", "frío", "fría", "tardó", "lento", "lenta", "poco", "insuficiente", "falta",
	}
)

// keywordStrategy scores the number of distinct keywords of the winning
// severity found in the comment.
func keywordStrategy(in Input) (Level, float64) {
	if strings.TrimSpace(in.Comment) == "" {
		return Low, 0
	}
	comment := strings.ToLower(in.Comment)

	if n := countMatches(comment, highRiskKeywords); n > 0 {
		return High, float64(n)
	}
	if n := countMatches(comment, mediumRiskKeywords); n > 0 {
		return Medium, float64(n)
	}
	return Low, 0
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

// aspectStrategy reports the lowest aspect rating as its score
func aspectStrategy(in Input) (Level, float64) {
	lowest := min(in.FoodQuality, in.WaitTime, in.Attention)
	switch {
	case lowest <= 2:
		return High, float64(lowest)
	case in.FoodQuality == 3 || in.WaitTime == 3 || in.Attention == 3:
		return Medium, float64(lowest)
	default:
		return Low, float64(lowest)
	}
}
