package agent

import "regexp"

// NewShell returns a Detector that never reports agent activity, for
// panes running a plain interactive shell.
func NewShell() Detector {
	return newBase("shell", func(string) (Activity, bool) { return Idle, false })
}

var claudeYoloPattern = regexp.MustCompile(`(?i)Do you \S[^\n]*\?[\s\S]{0,200}?1\.\s*Yes`)
var claudeThinkingPattern = regexp.MustCompile(`(?i)(Thinking|Pondering|Musing)\.{3}`)
var claudeToolPattern = regexp.MustCompile(`(?i)(Running|Executing|Calling) (tool|command)`)
var claudeBannerPattern = regexp.MustCompile(`(?i)Claude Code`)

// NewClaude returns a Detector tuned to Claude Code's terminal UI,
// grounded on kojo's yoloPattern ("Do you want to proceed? 1. Yes").
// claudeBannerPattern classifies the startup banner as Idle: it returns
// a busy detector to Idle, but on a freshly launched pane (already Idle)
// it produces no transition, so the banner alone does not mark the pane
// as an agent.
func NewClaude() Detector {
	return newBase("claude", func(clean string) (Activity, bool) {
		switch {
		case claudeYoloPattern.MatchString(clean):
			return AwaitingConfirmation, true
		case claudeToolPattern.MatchString(clean):
			return ToolUse, true
		case claudeThinkingPattern.MatchString(clean):
			return Thinking, true
		case claudeBannerPattern.MatchString(clean):
			return Idle, true
		default:
			return Idle, false
		}
	})
}

var geminiApprovalPattern = regexp.MustCompile(`(?i)Allow execution\?.*\(y/n\)`)
var geminiGeneratingPattern = regexp.MustCompile(`(?i)Generating`)

// NewGemini returns a Detector tuned to Gemini CLI's terminal UI.
func NewGemini() Detector {
	return newBase("gemini", func(clean string) (Activity, bool) {
		switch {
		case geminiApprovalPattern.MatchString(clean):
			return AwaitingConfirmation, true
		case geminiGeneratingPattern.MatchString(clean):
			return Generating, true
		default:
			return Idle, false
		}
	})
}

var codexSessionIDRe = regexp.MustCompile(`(?i)session id: ([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)
var codexApprovalPattern = regexp.MustCompile(`(?i)approve this (command|action)\?`)
var codexWorkingPattern = regexp.MustCompile(`(?i)(working|processing)\.{3}`)

// NewCodex returns a Detector tuned to Codex CLI's terminal UI,
// grounded on kojo's codexSessionIDRe (re-purposed here purely for
// activity classification rather than session-id capture, which
// internal/sideband's parent-child parent-tracking takes over).
func NewCodex() Detector {
	return newBase("codex", func(clean string) (Activity, bool) {
		switch {
		case codexApprovalPattern.MatchString(clean):
			return AwaitingConfirmation, true
		case codexWorkingPattern.MatchString(clean):
			return Processing, true
		default:
			return Idle, false
		}
	})
}
