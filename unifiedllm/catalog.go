package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models lists the models the agent is known to drive well with the JSON
// action protocol. The first entry per provider is its default.
var Models = []ModelInfo{
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini", ContextWindow: 128000, Aliases: []string{"4o-mini"}},
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", ContextWindow: 128000, Aliases: []string{"4o"}},
	{ID: "gpt-4.1", Provider: "openai", DisplayName: "GPT-4.1", ContextWindow: 1047576},

	{ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, Aliases: []string{"sonnet"}},
	{ID: "claude-3-5-haiku-latest", Provider: "anthropic", DisplayName: "Claude 3.5 Haiku", ContextWindow: 200000, Aliases: []string{"haiku"}},

	{ID: "deepseek-chat", Provider: "deepseek", DisplayName: "DeepSeek Chat", ContextWindow: 64000, Aliases: []string{"deepseek"}},
	{ID: "deepseek-coder", Provider: "deepseek", DisplayName: "DeepSeek Coder", ContextWindow: 64000},

	{ID: "llama-3.3-70b-versatile", Provider: "groq", DisplayName: "Llama 3.3 70B (Groq)", ContextWindow: 128000},
	{ID: "codestral-latest", Provider: "mistral", DisplayName: "Codestral", ContextWindow: 256000, Aliases: []string{"codestral"}},

	{ID: "qwen2.5-coder", Provider: "ollama", DisplayName: "Qwen 2.5 Coder (local)", ContextWindow: 32768},
	{ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1 (local)", ContextWindow: 128000},
}

// GetModelInfo returns the catalog entry for a model ID or alias, or nil.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	var result []ModelInfo
	for _, m := range Models {
		if provider == "" || m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the default model for a provider, or nil.
func GetLatestModel(provider string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider == provider {
			return &Models[i]
		}
	}
	return nil
}
