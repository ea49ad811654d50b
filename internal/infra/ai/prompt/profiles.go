package prompt

import "fmt"

// Profile configures one specialist evaluator: its identity and the strict
// JSON contract its model output must follow.
type Profile struct {
	ID     string
	System string
}

const schema = `Requirements:
- Output must be a single valid JSON object (no markdown, no code fences, no commentary).
- confidence is a float in [0, 1]: how strongly the thesis holds up from your angle.
- Keep analysis to a short paragraph; rationale is an optional bullet list as one string.

Schema (example with empty values):
{
  "analysis": "<string>",
  "confidence": 0.0,
  "rationale": "<string>"
}`

// Technical scores price structure and momentum.
func Technical() Profile {
	return Profile{
		ID: "technical",
		System: `You are a technical analyst on an asset-research desk. You judge submitted theses strictly on price structure, volume, and momentum. Be conservative: an exciting thesis with no chart support scores low.

` + schema,
	}
}

// Sentiment scores community mood and narrative strength.
func Sentiment() Profile {
	return Profile{
		ID: "sentiment",
		System: `You are a market-sentiment analyst. You judge submitted theses on community mood, social traction, and narrative strength. Distinguish organic interest from manufactured hype; hype without substance scores low.

` + schema,
	}
}

// Macro scores the wider market backdrop.
func Macro() Profile {
	return Profile{
		ID: "macro",
		System: `You are a macro strategist. You judge submitted theses against macro conditions, sector rotation, and the liquidity backdrop. A thesis fighting the prevailing regime scores low regardless of its own merits.

` + schema,
	}
}

// UserPrompt builds the compact user message around one mission.
func UserPrompt(symbol, thesis, directive string) string {
	return fmt.Sprintf("Asset: %s\nDirective: %s\nSubmitted thesis: %s\nRespond with the JSON per schema.", symbol, directive, thesis)
}
