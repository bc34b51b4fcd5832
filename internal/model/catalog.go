package model

// AIModel is one entry of the OpenRouter model catalog. Only the fields the
// service acts on are decoded; everything else upstream sends is ignored.
type AIModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

// Catalog is an immutable snapshot of a successful catalog fetch, partitioned
// into free and premium entries and bucketed by provider.
type Catalog struct {
	All        []AIModel
	Free       []AIModel
	Premium    []AIModel
	ByProvider map[string][]AIModel
}
