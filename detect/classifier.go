package detect

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"bastion/core"
	"bastion/score"

	"go.uber.org/zap"
)

// escalationConfidence is the scorer confidence above which an event is
// escalated to a critical alert. Strictly greater-than.
const escalationConfidence = 0.6

// detector is one built-in pattern detector. Detectors are checked in
// declaration order against both the message and the event type, and the
// first match wins.
type detector struct {
	name     string
	pattern  *regexp.Regexp
	severity core.Severity
	title    string
}

// builtinDetectors is the fixed, ordered detector table. Order encodes
// priority: an event that is both an auth failure and a scan is reported
// as an auth failure.
var builtinDetectors = []detector{
	{
		name:     "auth_failure",
		pattern:  regexp.MustCompile(`(?i)failed (login|password|authentication)|authentication fail|invalid credentials|unauthorized access`),
		severity: core.SeverityHigh,
		title:    "Authentication Failure",
	},
	{
		name:     "reconnaissance",
		pattern:  regexp.MustCompile(`(?i)port scan|nmap|reconnaissance|probe|enumerat`),
		severity: core.SeverityMedium,
		title:    "Reconnaissance Activity",
	},
	{
		name:     "denial_of_service",
		pattern:  regexp.MustCompile(`(?i)flood|denial of service|ddos|syn storm|too many requests`),
		severity: core.SeverityHigh,
		title:    "Denial of Service",
	},
	{
		name:     "privilege_escalation",
		pattern:  regexp.MustCompile(`(?i)privilege escalation|sudo abuse|became root|setuid`),
		severity: core.SeverityCritical,
		title:    "Privilege Escalation",
	},
	{
		name:     "data_exfiltration",
		pattern:  regexp.MustCompile(`(?i)exfiltrat|data leak|unusual (upload|transfer)`),
		severity: core.SeverityCritical,
		title:    "Data Exfiltration",
	},
	{
		name:     "injection_attack",
		pattern:  regexp.MustCompile(`(?i)sql injection|xss|cross-site|command injection|script injection`),
		severity: core.SeverityHigh,
		title:    "Injection Attack",
	},
	{
		name:     "firewall_denial",
		pattern:  regexp.MustCompile(`(?i)firewall (denied|dropped|blocked)|blocked by firewall`),
		severity: core.SeverityMedium,
		title:    "Firewall Denial",
	},
}

// Classifier is the built-in heuristic detector: a fixed pattern table plus
// an anomaly escalation driven by the remote scorer.
type Classifier struct {
	scorer        score.Scorer
	scorerTimeout time.Duration
	logger        *zap.SugaredLogger
}

// NewClassifier creates a classifier. scorer may be nil, which disables
// anomaly escalation entirely.
func NewClassifier(scorer score.Scorer, scorerTimeout time.Duration, logger *zap.SugaredLogger) *Classifier {
	if logger == nil {
		panic("logger is required")
	}
	return &Classifier{
		scorer:        scorer,
		scorerTimeout: scorerTimeout,
		logger:        logger,
	}
}

// Classify runs the detector table and, for error/critical events, the
// remote scorer. Returns nil when nothing matched and no escalation
// happened. Scorer failure is never surfaced: it degrades to a neutral
// result and the pattern-match outcome (if any) stands.
func (c *Classifier) Classify(ctx context.Context, event *core.Event) *core.AlertRequest {
	request := c.matchPatterns(event)

	if c.shouldScore(event) {
		result := c.scoreEvent(ctx, event)
		if result.IsAnomalous && result.Confidence > escalationConfidence {
			request = c.escalate(request, event, result)
		}
	}

	return request
}

// matchPatterns checks the detector table, first match wins
func (c *Classifier) matchPatterns(event *core.Event) *core.AlertRequest {
	for i := range builtinDetectors {
		d := &builtinDetectors[i]
		if d.pattern.MatchString(event.Message) || d.pattern.MatchString(event.EventType) {
			return &core.AlertRequest{
				Severity:    d.severity,
				Title:       d.title,
				Description: fmt.Sprintf("%s detected: %s", d.title, event.Message),
				Detector:    d.name,
			}
		}
	}
	return nil
}

// shouldScore reports whether the event qualifies for a remote scorer call.
// Only error- and critical-level events are submitted.
func (c *Classifier) shouldScore(event *core.Event) bool {
	if c.scorer == nil {
		return false
	}
	return event.Level == core.LogLevelError || event.Level == core.LogLevelCritical
}

// scoreEvent calls the remote scorer with a bounded timeout. Any failure
// degrades to the neutral result.
func (c *Classifier) scoreEvent(ctx context.Context, event *core.Event) score.ScoreResult {
	scoreCtx, cancel := context.WithTimeout(ctx, c.scorerTimeout)
	defer cancel()

	result, err := c.scorer.Score(scoreCtx, event.Message, score.ScoreContext{
		Source:    event.Source,
		EventType: event.EventType,
		SourceIP:  event.SourceIP,
	})
	if err != nil {
		c.logger.Warnw("Remote scorer unavailable, treating as not anomalous",
			"event_id", event.EventID,
			"error", err)
		return score.Neutral()
	}
	return result
}

// escalate raises the classification to a critical alert request. The
// scorer verdict overrides a pattern-detected severity outright rather than
// taking the max of the two.
func (c *Classifier) escalate(request *core.AlertRequest, event *core.Event, result score.ScoreResult) *core.AlertRequest {
	c.logger.Infow("Anomaly escalation",
		"event_id", event.EventID,
		"confidence", result.Confidence,
		"pattern_match", request != nil)

	if request == nil {
		return &core.AlertRequest{
			Severity:    core.SeverityCritical,
			Title:       "Anomalous Activity",
			Description: fmt.Sprintf("Anomaly classifier flagged event with confidence %.2f: %s", result.Confidence, event.Message),
			Detector:    "anomaly_scorer",
		}
	}

	request.Severity = core.SeverityCritical
	request.Description = fmt.Sprintf("%s (anomaly confidence %.2f)", request.Description, result.Confidence)
	return request
}
