package rlscore

import "github.com/Rikinshah787/agentos/internal/memoryjson"

// Store is the subset of the Memory Store the RL Scorer needs.
type Store interface {
	RecordPerformance(agentID string, tags []string, score int, taskID string) error
	CategoryLog(agentID, category string) memoryjson.CategoryLog
	RecentScores(agentID string, n int) []memoryjson.ScoreRecord
	AgentCategories(agentID string) []string
	TotalObservations(agentID string, tags []string) int
}

// defaultScore is used when an agent has no recorded observations for a
// category (or overall) — spec §4.3 "or 50 if the agent has no records".
const defaultScore = 50

// recentFailureWindow is the number of most-recent scores inspected for the
// recent-failure count.
const recentFailureWindow = 5

// recentFailureThreshold is the score below which an observation counts as
// a recent failure.
const recentFailureThreshold = 30

// Scorer wraps the Memory Store with the RL Scorer's derived read
// operations and its one write operation (RecordPerformance).
type Scorer struct {
	store Store
}

// New wraps store with the scorer's derived computations.
func New(store Store) *Scorer {
	return &Scorer{store: store}
}

// RecordPerformance appends a score to every tag's rolling log for agentID.
func (s *Scorer) RecordPerformance(agentID string, tags []string, score int, taskID string) error {
	return s.store.RecordPerformance(agentID, tags, score, taskID)
}

// CategoryScore returns the rolling average for (agentID, category), or the
// default score if the agent has no observations for it yet.
func (s *Scorer) CategoryScore(agentID, category string) int {
	log := s.store.CategoryLog(agentID, category)
	if log.Count == 0 {
		return defaultScore
	}
	return log.Avg
}

// TypeScore is the mean of CategoryScore across tags — the orchestrator's
// per-candidate typeScore (spec §4.9 step 2).
func (s *Scorer) TypeScore(agentID string, tags []string) float64 {
	if len(tags) == 0 {
		return defaultScore
	}
	sum := 0
	for _, t := range tags {
		sum += s.CategoryScore(agentID, t)
	}
	return float64(sum) / float64(len(tags))
}

// Observations returns the total number of recorded scores for agentID
// across tags, used for the exploration bonus.
func (s *Scorer) Observations(agentID string, tags []string) int {
	return s.store.TotalObservations(agentID, tags)
}

// RecentFailures returns the number of scores below 30 among the 5
// most-recent records (across all categories) for agentID.
func (s *Scorer) RecentFailures(agentID string) int {
	recent := s.store.RecentScores(agentID, recentFailureWindow)
	n := 0
	for _, r := range recent {
		if r.Score < recentFailureThreshold {
			n++
		}
	}
	return n
}

// OverallScore is the arithmetic mean of an agent's per-category averages,
// or 50 if the agent has no records at all.
func (s *Scorer) OverallScore(agentID string) float64 {
	categories := s.store.AgentCategories(agentID)
	if len(categories) == 0 {
		return defaultScore
	}
	sum := 0
	for _, c := range categories {
		sum += s.store.CategoryLog(agentID, c).Avg
	}
	return float64(sum) / float64(len(categories))
}
