package agents

// modelAliases maps short model names to fully-qualified model IDs.
// Unknown strings pass through unchanged so new models work without a
// release.
var modelAliases = map[string]string{
	"sonnet": "claude-sonnet-4-5-20250929",
	"opus":   "claude-opus-4-1-20250805",
	"haiku":  "claude-haiku-4-5-20251001",
	"codex":  "gpt-5.3-codex",
}

// ResolveModel expands a short model alias to its fully-qualified ID.
func ResolveModel(model string) string {
	if full, ok := modelAliases[model]; ok {
		return full
	}
	return model
}
