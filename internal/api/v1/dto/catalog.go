package dto

// ModelResponseDTO is one catalog entry as exposed to clients.
type ModelResponseDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	Provider      string `json:"provider"`
	Free          bool   `json:"free"`
	Entitled      bool   `json:"entitled"`
}

// CatalogResponseDTO is the full catalog snapshot, partitioned for display.
// Available holds only the entries the caller's tier is entitled to and is
// the list a picker should offer.
type CatalogResponseDTO struct {
	Models     []ModelResponseDTO            `json:"models"`
	Available  []ModelResponseDTO            `json:"available"`
	Categories map[string][]ModelResponseDTO `json:"categories"`
	Loaded     bool                          `json:"loaded"`
	LastError  string                        `json:"last_error,omitempty"`
}
