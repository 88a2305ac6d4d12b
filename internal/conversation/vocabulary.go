package conversation

import "strings"

// Stage is a discrete point in the sales funnel state machine.
type Stage string

const (
	StageGreeting      Stage = "greeting"
	StageQualification Stage = "qualification"
	StagePricing       Stage = "pricing"
	StageCTA           Stage = "cta"
	StageLost          Stage = "lost"
	StageGhosted       Stage = "ghosted"
)

// Intent is the lead's buying-intent level as read from the conversation.
type Intent string

const (
	IntentLow    Intent = "low"
	IntentMedium Intent = "medium"
	IntentHigh   Intent = "high"
)

// Sentiment is the lead's current tone.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

// RiskLevel grades a single risk flag.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Action is the pipeline's chosen next move for a conversation turn.
type Action string

const (
	ActionSendNow       Action = "send_now"
	ActionWaitSchedule  Action = "wait_schedule"
	ActionFlagAttention Action = "flag_attention"
	ActionInitiateCTA   Action = "initiate_cta"
)

// Mode says who is driving the conversation.
type Mode string

const (
	ModeBot   Mode = "bot"
	ModeHuman Mode = "human"
)

// ScheduledActionStatus tracks the lifecycle of a scheduled follow-up.
type ScheduledActionStatus string

const (
	ScheduledStatusPending   ScheduledActionStatus = "pending"
	ScheduledStatusExecuted  ScheduledActionStatus = "executed"
	ScheduledStatusCancelled ScheduledActionStatus = "cancelled"
)

// Model output arrives as free strings. Each vocabulary gets exactly one
// parse function that degrades an unrecognized value to a named default,
// never to a near-miss neighbor.

// ParseStageWithFallback maps a raw stage string onto the closed stage set.
func ParseStageWithFallback(raw string, fallback Stage) Stage {
	switch Stage(normalizeToken(raw)) {
	case StageGreeting:
		return StageGreeting
	case StageQualification:
		return StageQualification
	case StagePricing:
		return StagePricing
	case StageCTA:
		return StageCTA
	case StageLost:
		return StageLost
	case StageGhosted:
		return StageGhosted
	default:
		return fallback
	}
}

// ParseIntentWithFallback maps a raw intent string onto the closed intent set.
func ParseIntentWithFallback(raw string, fallback Intent) Intent {
	switch Intent(normalizeToken(raw)) {
	case IntentLow:
		return IntentLow
	case IntentMedium:
		return IntentMedium
	case IntentHigh:
		return IntentHigh
	default:
		return fallback
	}
}

// ParseSentimentWithFallback maps a raw sentiment string onto the closed set.
func ParseSentimentWithFallback(raw string, fallback Sentiment) Sentiment {
	switch Sentiment(normalizeToken(raw)) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNeutral:
		return SentimentNeutral
	case SentimentNegative:
		return SentimentNegative
	case SentimentFrustrated:
		return SentimentFrustrated
	default:
		return fallback
	}
}

// ParseRiskWithFallback maps a raw risk string onto the closed risk set.
func ParseRiskWithFallback(raw string, fallback RiskLevel) RiskLevel {
	switch RiskLevel(normalizeToken(raw)) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	default:
		return fallback
	}
}

// ParseActionWithFallback maps a raw action string onto the closed action set.
func ParseActionWithFallback(raw string, fallback Action) Action {
	switch Action(normalizeToken(raw)) {
	case ActionSendNow:
		return ActionSendNow
	case ActionWaitSchedule:
		return ActionWaitSchedule
	case ActionFlagAttention:
		return ActionFlagAttention
	case ActionInitiateCTA:
		return ActionInitiateCTA
	default:
		return fallback
	}
}

// ParseModeWithFallback maps a raw mode string onto the closed mode set.
func ParseModeWithFallback(raw string, fallback Mode) Mode {
	switch Mode(normalizeToken(raw)) {
	case ModeBot:
		return ModeBot
	case ModeHuman:
		return ModeHuman
	default:
		return fallback
	}
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
