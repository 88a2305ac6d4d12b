package conversation

import (
	"fmt"
	"strings"
)

// PromptRegistry maps (stage, opening) to the rule block included in the
// classification system prompt. Lookup is a pure function of the key; no
// stage-specific branching happens anywhere else.
type PromptRegistry struct {
	rules   map[promptKey]string
	opening string
}

type promptKey struct {
	stage   Stage
	opening bool
}

// NewPromptRegistry builds the default registry.
func NewPromptRegistry() *PromptRegistry {
	r := &PromptRegistry{rules: make(map[promptKey]string)}

	r.register(StageGreeting, false, greetingRules)
	r.register(StageGreeting, true, openingRules)
	r.register(StageQualification, false, qualificationRules)
	r.register(StagePricing, false, pricingRules)
	r.register(StageCTA, false, ctaRules)
	r.register(StageLost, false, lostRules)
	r.register(StageGhosted, false, ghostedRules)

	return r
}

func (r *PromptRegistry) register(stage Stage, opening bool, rules string) {
	r.rules[promptKey{stage: stage, opening: opening}] = rules
}

// Rules returns the rule block for a stage. An opening conversation gets
// its dedicated variant; stages without one fall back to their regular
// block so prompt size stays bounded either way.
func (r *PromptRegistry) Rules(stage Stage, opening bool) string {
	if rules, ok := r.rules[promptKey{stage: stage, opening: opening}]; ok {
		return rules
	}
	if rules, ok := r.rules[promptKey{stage: stage}]; ok {
		return rules
	}
	return greetingRules
}

const (
	openingRules = `This is the lead's very first message. Welcome them warmly,
introduce the business in one sentence, and ask one open question to learn
what they need. Propose stage "qualification" only when the message already
shows clear interest.`

	greetingRules = `The conversation just started. Keep replies short and
friendly. Move toward qualification once the lead states a need.`

	qualificationRules = `You are qualifying the lead. Identify their need,
budget signals and urgency. Do not quote prices yet; propose stage "pricing"
when the need is clear.`

	pricingRules = `The lead is discussing price. Answer pricing questions from
the provided business context only; never invent numbers. Propose stage "cta"
when the lead signals readiness to act.`

	ctaRules = `The lead is ready for a call to action. Offer exactly one of
the available CTAs. If they accept, set action "initiate_cta" with the CTA id.`

	lostRules = `The lead declined. Stay polite, do not push. Only respond to
direct questions; otherwise prefer action "wait_schedule" with no follow-up.`

	ghostedRules = `The lead stopped responding earlier. If this run was
triggered by a timer, decide whether one gentle nudge is appropriate given
the nudge counters; never exceed the caps.`
)

// BuildClassifyPrompts renders the system and user prompts for the
// classification step.
func BuildClassifyPrompts(reg *PromptRegistry, in PipelineInput) (system string, user string) {
	var sys strings.Builder
	sys.WriteString("You are the sales conversation brain for ")
	sys.WriteString(orDefault(in.Business.Name, "this business"))
	sys.WriteString(", a business talking to leads over WhatsApp.\n")
	if in.Business.Description != "" {
		sys.WriteString("Business: " + in.Business.Description + "\n")
	}
	if in.Business.FlowInstructions != "" {
		sys.WriteString("Sales flow instructions: " + in.Business.FlowInstructions + "\n")
	}
	sys.WriteString("\nStage rules:\n")
	sys.WriteString(reg.Rules(in.Stage, in.IsOpening()))
	sys.WriteString("\n\n")
	sys.WriteString(classifySchemaInstructions)

	var usr strings.Builder
	fmt.Fprintf(&usr, "Current stage: %s\nIntent: %s\nSentiment: %s\n", in.Stage, in.Intent, in.Sentiment)
	fmt.Fprintf(&usr, "24h messaging window open: %t\n", in.WindowOpen)
	fmt.Fprintf(&usr, "Follow-ups sent in last 24h: %d, lifetime nudges: %d\n", in.FollowupsLast24h, in.NudgesTotal)
	if in.Summary != "" {
		usr.WriteString("\nConversation summary so far:\n" + in.Summary + "\n")
	}
	writeHistory(&usr, in.History)
	writeCTAs(&usr, in.CTAs)
	writeKnowledge(&usr, in.Knowledge)
	usr.WriteString("\nClassify the situation and decide the next action.")

	return sys.String(), usr.String()
}

const classifySchemaInstructions = `Return one JSON object with exactly these fields:
{
  "thought": string,
  "situation": string,
  "intent_level": "low"|"medium"|"high",
  "user_sentiment": "positive"|"neutral"|"negative"|"frustrated",
  "spam_risk": "low"|"medium"|"high",
  "policy_risk": "low"|"medium"|"high",
  "hallucination_risk": "low"|"medium"|"high",
  "action": "send_now"|"wait_schedule"|"flag_attention"|"initiate_cta",
  "new_stage": "greeting"|"qualification"|"pricing"|"cta"|"lost"|"ghosted",
  "should_respond": bool,
  "cta_id": string or "",
  "cta_scheduled_at": RFC3339 string or "",
  "followup_in_minutes": int (0 for none),
  "followup_reason": string,
  "confidence": float 0.0-1.0,
  "needs_human_attention": bool
}
Never respond when the 24h window is closed. Respect the nudge caps.`

// BuildGeneratePrompts renders the system and user prompts for the response
// generation step, scoped to the business persona and reply constraints.
func BuildGeneratePrompts(in PipelineInput, plan ClassifyOutput) (system string, user string) {
	var sys strings.Builder
	sys.WriteString("You write WhatsApp replies on behalf of ")
	sys.WriteString(orDefault(in.Business.Name, "this business"))
	sys.WriteString(".\n")
	if in.Business.Description != "" {
		sys.WriteString("Business: " + in.Business.Description + "\n")
	}
	fmt.Fprintf(&sys, "Hard limits: at most %d words and at most %d question(s) per reply.\n",
		in.Constraints.MaxWords, in.Constraints.MaxQuestions)
	sys.WriteString(generateSchemaInstructions)

	var usr strings.Builder
	usr.WriteString("Implementation plan from the conversation brain:\n")
	fmt.Fprintf(&usr, "Situation: %s\nAction: %s\nTarget stage: %s\n", plan.Situation, plan.Action, plan.NewStage)
	if plan.Thought != "" {
		usr.WriteString("Reasoning: " + plan.Thought + "\n")
	}
	writeHistory(&usr, in.History)
	writeCTAs(&usr, in.CTAs)
	writeKnowledge(&usr, in.Knowledge)
	usr.WriteString("\nDraft the reply now.")

	return sys.String(), usr.String()
}

const generateSchemaInstructions = `Return one JSON object:
{
  "text": string,
  "language": BCP47 code of the reply,
  "self_check_passed": bool,
  "violations": [string]
}
Before returning, check your own draft against the word limit, question limit
and business policy; report failures in "violations".`

// BuildSummaryPrompts renders prompts for the rolling-summary step.
func BuildSummaryPrompts(in PipelineInput, userMessage, reply string, cls ClassifyOutput) (system string, user string) {
	system = `You maintain a rolling summary of a WhatsApp sales conversation.
Fold the newest exchange into the prior summary. Keep it under 150 words,
factual, in the third person. Return plain text only.`

	var usr strings.Builder
	if in.Summary != "" {
		usr.WriteString("Prior summary:\n" + in.Summary + "\n\n")
	}
	if userMessage != "" {
		usr.WriteString("Lead said: " + userMessage + "\n")
	}
	if reply != "" {
		usr.WriteString("We replied: " + reply + "\n")
	}
	if cls.NewStage != "" {
		fmt.Fprintf(&usr, "Turn assessment: stage %s, intent %s, sentiment %s.\n",
			cls.NewStage, cls.Intent, cls.Sentiment)
	}
	usr.WriteString("\nWrite the updated summary.")
	return system, usr.String()
}

func writeHistory(b *strings.Builder, history []HistoryMessage) {
	if len(history) == 0 {
		b.WriteString("\nNo prior messages; this is the opening exchange.\n")
		return
	}
	b.WriteString("\nRecent messages (oldest first):\n")
	for _, msg := range history {
		fmt.Fprintf(b, "[%s] %s\n", msg.Role, msg.Body)
	}
}

func writeCTAs(b *strings.Builder, ctas []CTA) {
	if len(ctas) == 0 {
		return
	}
	b.WriteString("\nAvailable CTAs:\n")
	for _, cta := range ctas {
		fmt.Fprintf(b, "- id=%s label=%q %s\n", cta.ID, cta.Label, cta.Description)
	}
}

func writeKnowledge(b *strings.Builder, snippets []ContextSnippet) {
	if len(snippets) == 0 {
		return
	}
	b.WriteString("\nRelevant business knowledge:\n")
	for _, s := range snippets {
		fmt.Fprintf(b, "## %s\n%s\n", s.Title, s.Content)
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
