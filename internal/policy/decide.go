// Package policy turns an anomaly score into the action taken on a request.
package policy

import "github.com/klyr/eudoxus/internal/config"

type Action string

const (
	ActionAllow  Action = "allow"
	ActionBlock  Action = "block"
	ActionDetect Action = "detect"
)

// DecideAction compares score with threshold. A threshold of zero or less
// never trips, so a site without one only records matches.
func DecideAction(mode string, score, threshold int) (Action, bool) {
	if threshold <= 0 || score < threshold {
		return ActionAllow, false
	}

	switch mode {
	case config.ModeEnforce:
		return ActionBlock, true
	case config.ModeDetect:
		return ActionDetect, false
	default:
		return ActionAllow, false
	}
}

// Inspects reports whether a site in mode evaluates rules at all.
func Inspects(mode string) bool {
	return mode == config.ModeEnforce || mode == config.ModeDetect
}
