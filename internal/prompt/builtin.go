package prompt

// Template names used by the generation pipeline.
const (
	ContentPiece     = "content-piece.md"
	AdvisorReview    = "advisor-review.md"
	PivotSuggestions = "pivot-suggestions.md"
	DocumentChat     = "document-chat.md"
)

// Foundation returns the template name for a foundation document kind.
func Foundation(kind string) string { return "foundation-" + kind + ".md" }

// Research returns the template name for a research step.
func Research(step string) string { return "research-" + step + ".md" }

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	"foundation-strategy.md":       strategyTemplate,
	"foundation-positioning.md":    positioningTemplate,
	"foundation-battlecards.md":    battlecardsTemplate,
	"foundation-brand-voice.md":    brandVoiceTemplate,
	"foundation-pricing.md":        pricingTemplate,
	"foundation-seo-strategy.md":   seoStrategyTemplate,
	"foundation-product-design.md": productDesignTemplate,
	ContentPiece:                   contentPieceTemplate,
	"research-market.md":           researchMarketTemplate,
	"research-competitors.md":      researchCompetitorsTemplate,
	"research-audience.md":         researchAudienceTemplate,
	"research-synthesis.md":        researchSynthesisTemplate,
	AdvisorReview:                  advisorReviewTemplate,
	PivotSuggestions:               pivotSuggestionsTemplate,
	DocumentChat:                   documentChatTemplate,
}

// documentFooter is appended to every template whose reply is a document.
const documentFooter = `
{{#if revision_feedback}}
## Editor Feedback On The Previous Draft
Address every point below. Do not mention the feedback in the document itself.
{{revision_feedback}}
{{#if previous_draft}}

### Previous Draft
{{previous_draft}}
{{/if}}
{{/if}}

## Output Format
Write one short sentence about what you produced, then the complete document in Markdown
wrapped exactly like this:
<updated_document>
...document...
</updated_document>
`

const ideaHeader = `## Idea: {{idea_title}}
{{idea_summary}}
{{#if analysis}}

## Research Analysis
{{analysis}}
{{/if}}
{{#if prerequisites}}

## Existing Foundation Documents
{{prerequisites}}
{{/if}}
`

const strategyTemplate = `# Product Strategy

` + ideaHeader + `
## Goal
Write the product strategy: the problem, who has it most acutely, the wedge into the market,
the twelve-month objectives, and the key risks with how each will be tested.
` + documentFooter

const positioningTemplate = `# Positioning

` + ideaHeader + `
## Goal
Write a positioning statement and supporting pillars: target customer, market category,
primary alternative, key differentiator and proof points. Stay consistent with the strategy.
` + documentFooter

const battlecardsTemplate = `# Competitive Battlecards

` + ideaHeader + `
## Goal
Write one battlecard per major competitor: who they serve, where they win, where we win,
landmines to plant and objection handling. Derive our advantages from the positioning.
` + documentFooter

const brandVoiceTemplate = `# Brand Voice

` + ideaHeader + `
## Goal
Define the brand voice: personality traits, tone by channel, vocabulary to use and avoid,
and three before/after rewrite examples that embody the positioning.
` + documentFooter

const pricingTemplate = `# Pricing

` + ideaHeader + `
## Goal
Propose packaging and pricing: value metric, tiers with what each includes, price points with
the reasoning behind them, and the experiment that would validate willingness to pay.
` + documentFooter

const seoStrategyTemplate = `# SEO Strategy

` + ideaHeader + `
## Goal
Write the SEO strategy: keyword clusters by intent, pillar pages, a first-quarter content plan
and on-page guidelines that follow the brand voice.
` + documentFooter

const productDesignTemplate = `# Product Design Brief

` + ideaHeader + `
## Goal
Write the product design brief: core jobs to be done, the MVP feature set, key user flows,
and interface principles that express the brand voice and positioning.
` + documentFooter

const contentPieceTemplate = `# Content: {{piece_title}}

## Idea: {{idea_title}}
{{idea_summary}}

## Piece
Type: {{piece_type}}
{{#if piece_brief}}
Brief: {{piece_brief}}
{{/if}}
{{#if brand_voice}}

## Brand Voice
{{brand_voice}}
{{/if}}
{{#if positioning}}

## Positioning
{{positioning}}
{{/if}}

## Goal
Write the finished piece, ready to publish, following the brand voice.
` + documentFooter

const researchHeader = `## Idea: {{idea_title}}
{{idea_summary}}
{{#if findings}}

## Findings So Far
{{findings}}
{{/if}}
`

const researchMarketTemplate = `# Research: Market

` + researchHeader + `
## Goal
Size the market. Describe the segments, the trends driving demand and the budget holders.
Reply in plain Markdown.
`

const researchCompetitorsTemplate = `# Research: Competitors

` + researchHeader + `
## Goal
List the direct and indirect competitors, what they charge, and the gaps in their offering.
Reply in plain Markdown.
`

const researchAudienceTemplate = `# Research: Audience

` + researchHeader + `
## Goal
Describe the primary audience: roles, pains, watering holes, and the phrases they use to
describe the problem. Reply in plain Markdown.
`

const researchSynthesisTemplate = `# Research: Synthesis

` + researchHeader + `
## Goal
Synthesize the findings into a single JSON object and reply with nothing else:
{
  "summary": "...",
  "market": "...",
  "competitors": ["..."],
  "audience": "...",
  "channels": ["..."],
  "price_points": ["..."],
  "differentiators": ["..."],
  "risks": ["..."]
}
`

const advisorReviewTemplate = `# Review As {{advisor_name}}

You focus on: {{advisor_focus}}
{{#if advisor_prompt}}

{{advisor_prompt}}
{{/if}}

## Draft ({{document_kind}})
{{draft}}

## Instructions
Score the draft from 0 to 10 and list concrete issues. Use "high" only for problems that make
the draft unusable, "medium" for problems worth another revision, "low" for polish.
Reply with JSON only:
{"score": 7.5, "issues": [{"severity": "medium", "description": "..."}]}
`

const pivotSuggestionsTemplate = `# Pivot Options: {{assumption_type}}

## Idea: {{idea_title}}
{{idea_summary}}

## Assumption Under Threat
{{statement}}
{{#if evidence}}

## Evidence
{{evidence}}
{{/if}}

## Instructions
Suggest up to five alternative directions that would rescue this assumption, best first.
Reply with a JSON array only:
[{"title": "...", "rationale": "...", "new_statement": "..."}]
`

const documentChatTemplate = `# Editing: {{document_kind}}

## Current Document
{{document}}
{{#if history}}

## Conversation So Far
{{history}}
{{/if}}

## Request
{{message}}

## Instructions
Answer conversationally. If the request needs the document to change, include the complete
revised document wrapped exactly like this:
<updated_document>
...document...
</updated_document>
Leave the tags out when no change is needed.
`
