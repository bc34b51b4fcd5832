package service

import (
	"strings"

	"tapachat/internal/model"
)

// Entitlement is derived, not stored: the catalog has no explicit tier field,
// so free models are recognized by the "free" marker OpenRouter puts in the
// id or display name. Keeping the classification in these pure functions
// means a real entitlement field can replace it later without touching call
// sites.

// IsFreeModel reports whether a catalog entry is classified free.
func IsFreeModel(m model.AIModel) bool {
	return strings.Contains(strings.ToLower(m.ID), "free") ||
		strings.Contains(strings.ToLower(m.Name), "free")
}

// IsEntitled reports whether a tier may use a catalog entry. Paid tiers get
// every entry; free (and anything unknown, which parses to free) only gets
// free-classified entries.
func IsEntitled(m model.AIModel, tier model.Tier) bool {
	if tier.Paid() {
		return true
	}
	return IsFreeModel(m)
}

// FilterEntitled returns the catalog entries usable under the given tier,
// preserving catalog order.
func FilterEntitled(models []model.AIModel, tier model.Tier) []model.AIModel {
	if tier.Paid() {
		out := make([]model.AIModel, len(models))
		copy(out, models)
		return out
	}
	var out []model.AIModel
	for _, m := range models {
		if IsFreeModel(m) {
			out = append(out, m)
		}
	}
	return out
}

// FirstEntitled returns the first catalog entry usable under the tier.
func FirstEntitled(models []model.AIModel, tier model.Tier) (model.AIModel, bool) {
	for _, m := range models {
		if IsEntitled(m, tier) {
			return m, true
		}
	}
	return model.AIModel{}, false
}

// ProviderName derives a display provider from the model id prefix.
func ProviderName(m model.AIModel) string {
	parts := strings.SplitN(m.ID, "/", 2)
	if len(parts) < 2 {
		return "Unknown Provider"
	}
	provider := parts[0]
	if provider == "" {
		return "Unknown Provider"
	}

	switch strings.ToLower(provider) {
	case "openai":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	case "meta-llama", "meta":
		return "Meta"
	case "google":
		return "Google"
	case "mistralai":
		return "Mistral AI"
	case "deepseek":
		return "DeepSeek"
	case "qwen":
		return "Qwen"
	case "microsoft":
		return "Microsoft"
	default:
		return strings.ToUpper(provider[:1]) + provider[1:]
	}
}

// DisplayName strips the "Provider: " prefix and trailing parenthetical from
// a catalog entry's name.
func DisplayName(m model.AIModel) string {
	name := m.Name
	if idx := strings.Index(name, ":"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "("); idx >= 0 && strings.HasSuffix(strings.TrimSpace(name), ")") {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// CategorizeModels buckets entries by provider, matched heuristically from
// name keywords or the id prefix. Entries that match nothing land in "Other".
func CategorizeModels(models []model.AIModel) map[string][]model.AIModel {
	categories := make(map[string][]model.AIModel)

	for _, m := range models {
		name := strings.ToLower(m.Name)
		provider := "Other"

		switch {
		case strings.Contains(name, "gpt") || strings.Contains(m.ID, "openai"):
			provider = "OpenAI"
		case strings.Contains(name, "claude") || strings.Contains(m.ID, "anthropic"):
			provider = "Anthropic"
		case strings.Contains(name, "llama") || strings.Contains(m.ID, "meta"):
			provider = "Meta"
		case strings.Contains(name, "gemini") || strings.Contains(m.ID, "google"):
			provider = "Google"
		}

		categories[provider] = append(categories[provider], m)
	}

	return categories
}
