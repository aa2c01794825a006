package llm

import (
	"fmt"
	"sort"
)

// TypeMeta describes the static properties of one provider type: what a
// descriptor must carry to be constructible and how the UI presents it.
type TypeMeta struct {
	Name           string `json:"name"`
	RequiresAPIKey bool   `json:"requires_api_key"`
	RequiresURL    bool   `json:"requires_url"`
	DefaultURL     string `json:"default_url"`
	Color          string `json:"color"`
	Icon           string `json:"icon"`
	Description    string `json:"description"`
}

var typeMeta = map[string]TypeMeta{
	TypeOllama: {
		Name: "Ollama", RequiresURL: true,
		DefaultURL: "http://localhost:11434", Color: "blue", Icon: "server",
		Description: "Local or remote Ollama server",
	},
	TypeLMStudio: {
		Name: "LM Studio", RequiresURL: true,
		DefaultURL: "http://localhost:1234/v1", Color: "teal", Icon: "desktop",
		Description: "LM Studio in local server mode",
	},
	TypeOpenAI: {
		Name: "OpenAI", RequiresAPIKey: true,
		DefaultURL: "https://api.openai.com/v1", Color: "emerald", Icon: "sparkles",
		Description: "Official OpenAI API (GPT-4, GPT-4o, ...)",
	},
	TypeAnthropic: {
		Name: "Anthropic", RequiresAPIKey: true,
		DefaultURL: "https://api.anthropic.com", Color: "amber", Icon: "beaker",
		Description: "Anthropic API (Claude 3.5, Claude 3, ...)",
	},
	TypeGemini: {
		Name: "Google Gemini", RequiresAPIKey: true,
		Color: "purple", Icon: "cube",
		Description: "Google Gemini API (Gemini 1.5 Pro, Flash, ...)",
	},
	TypeMistral: {
		Name: "Mistral AI", RequiresAPIKey: true,
		DefaultURL: "https://api.mistral.ai/v1", Color: "orange", Icon: "bolt",
		Description: "Official Mistral AI API",
	},
	TypeGroq: {
		Name: "Groq", RequiresAPIKey: true,
		DefaultURL: "https://api.groq.com/openai/v1", Color: "cyan", Icon: "lightning-bolt",
		Description: "Groq low-latency inference API",
	},
	TypeOpenRouter: {
		Name: "OpenRouter", RequiresAPIKey: true,
		DefaultURL: "https://openrouter.ai/api/v1", Color: "pink", Icon: "globe",
		Description: "Multi-model aggregator (Claude, GPT, Llama, ...)",
	},
	TypeDeepSeek: {
		Name: "DeepSeek", RequiresAPIKey: true,
		DefaultURL: "https://api.deepseek.com", Color: "indigo", Icon: "code",
		Description: "DeepSeek API (DeepSeek-V3, Coder, ...)",
	},
	TypeCerebras: {
		Name: "Cerebras", RequiresAPIKey: true,
		DefaultURL: "https://api.cerebras.ai/v1", Color: "lime", Icon: "chip",
		Description: "Cerebras inference API",
	},
	TypeHuggingFace: {
		Name: "Hugging Face", RequiresAPIKey: true,
		DefaultURL: "https://api-inference.huggingface.co/v1", Color: "yellow", Icon: "face-smile",
		Description: "Hugging Face serverless inference API",
	},
	TypeQwen: {
		Name: "Qwen (Alibaba)", RequiresAPIKey: true,
		Color: "rose", Icon: "cloud",
		Description: "DashScope API (Qwen-Max, Qwen-Plus, ...)",
	},
	TypeCohere: {
		Name: "Cohere", RequiresAPIKey: true,
		Color: "violet", Icon: "command-line",
		Description: "Cohere API (Command R, Command R+, ...)",
	},
	TypeOpenAICompatible: {
		Name: "OpenAI Compatible", RequiresURL: true,
		DefaultURL: "http://localhost:8080/v1", Color: "slate", Icon: "plug",
		Description: "Generic OpenAI-compatible API (vLLM, TGI, ...)",
	},
}

// MetaFor returns the static metadata for a provider type.
func MetaFor(providerType string) (TypeMeta, bool) {
	m, ok := typeMeta[providerType]
	return m, ok
}

// Types returns all known provider type identifiers, sorted.
func Types() []string {
	out := make([]string, 0, len(typeMeta))
	for t := range typeMeta {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ForProvider constructs the adapter for a descriptor. The call is pure: no
// network traffic, no shared state. Descriptors missing a required URL or
// API key, or naming an unknown type, fail with an invalid_request error.
func ForProvider(d Descriptor) (Client, error) {
	meta, ok := typeMeta[d.Type]
	if !ok {
		return nil, NewError(fmt.Sprintf("unknown provider type %q", d.Type), d.Type, KindInvalidReq)
	}
	if meta.RequiresURL && d.URL == "" {
		return nil, NewError(fmt.Sprintf("provider type %q requires a URL", d.Type), d.Type, KindInvalidReq)
	}
	if meta.RequiresAPIKey && d.Credential == "" {
		return nil, NewError(fmt.Sprintf("provider type %q requires an API key", d.Type), d.Type, KindInvalidReq)
	}

	switch d.Type {
	case TypeOllama:
		return NewOllamaClient(d.URL, d.DefaultModel), nil
	case TypeAnthropic:
		return NewAnthropicClient(d.URL, d.Credential), nil
	case TypeGemini:
		return NewGeminiClient(d.URL, d.Credential), nil
	case TypeQwen:
		return NewQwenClient(d.URL, d.Credential), nil
	case TypeCohere:
		return NewCohereClient(d.URL, d.Credential), nil
	case TypeOpenAI, TypeOpenAICompatible, TypeLMStudio, TypeGroq, TypeMistral,
		TypeOpenRouter, TypeDeepSeek, TypeCerebras, TypeHuggingFace:
		return NewOpenAIClient(d.Type, d.URL, d.Credential, d.ExtraHeaders), nil
	}
	return nil, NewError(fmt.Sprintf("unknown provider type %q", d.Type), d.Type, KindInvalidReq)
}
