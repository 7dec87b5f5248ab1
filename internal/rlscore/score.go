package rlscore

import "strings"

// ScoreInput captures the facts of a completed task the scoring formula
// needs (spec §4.3). Files/Commands counts and HasOutcomes come from the
// parser and executor; RawHasFileMarker distinguishes "the model tried to
// emit a FILE block" from "files were actually extracted".
type ScoreInput struct {
	Files              int
	RawHasFileMarker   bool
	Commands           int
	HasOutcomes        bool // true once the executor attempted the commands
	SuccessfulCommands int
	Tokens             int
	Failed             bool // final task status == failed
}

// Score applies the fixed scoring formula to a completed task and clamps
// the result to [0, 100].
func Score(in ScoreInput) int {
	base := 0

	if in.Files > 0 {
		base += 20 + minInt(20, 5*in.Files)
	}
	if in.RawHasFileMarker {
		base += 15
	}

	switch {
	case in.Commands > 0 && in.HasOutcomes:
		base += roundDiv(15*in.SuccessfulCommands, in.Commands)
	case in.Commands == 0:
		base += 10
	}

	base += tokenBucket(in.Tokens)

	if !in.Failed {
		base += 15
	}

	return clamp(base, 0, 100)
}

func tokenBucket(tokens int) int {
	switch {
	case tokens > 0 && tokens < 500:
		return 15
	case tokens >= 500 && tokens < 2000:
		return 12
	case tokens >= 2000 && tokens < 5000:
		return 8
	case tokens >= 5000 && tokens < 10000:
		return 4
	default:
		return 0
	}
}

// FailureScore is the RL score assigned to a task that threw before
// completion: 25 if the error looks like a transport/API problem, 0
// otherwise.
func FailureScore(transportOrAPI bool) int {
	if transportOrAPI {
		return 25
	}
	return 0
}

// IsTransportOrAPIError reports whether err's message indicates an
// HTTP 4xx/5xx, timeout, or connection-refused condition — the same
// substring-classification idiom used by the backend adapter's error
// classifier.
func IsTransportOrAPIError(errMsg string) bool {
	msg := strings.ToLower(errMsg)
	markers := []string{
		"http 4", "http 5", "status code 4", "status code 5",
		"timeout", "timed out", "deadline exceeded",
		"connection refused", "connection reset", "no such host",
		"429", "500", "502", "503", "504",
	}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// roundDiv computes round(numerator/denominator) using integer half-up
// rounding, matching the spec's `round(15 · successful(R)/|E|)` formula.
func roundDiv(numerator, denominator int) int {
	if denominator == 0 {
		return 0
	}
	// round-half-up for non-negative values.
	return (numerator + denominator/2) / denominator
}
