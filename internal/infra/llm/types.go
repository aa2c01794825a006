// Package llm implements the provider-agnostic LLM client abstraction.
// Every vendor adapter translates the normalized request types below into its
// own wire format and converges its response stream back onto ChatChunk.
package llm

// Message roles. At most one system message is honored per request: the first
// system entry wins, later ones are dropped during adapter-side normalization.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the normalized input for Chat and ChatStream.
//
// Options carries generation parameters under their normalized names
// (temperature, top_p, top_k, num_ctx, max_tokens, repeat_penalty); each
// adapter owns the mapping to its vendor's parameter names via
// NormalizeOptions. Images are raw base64 strings attached to the final user
// message in a vendor-specific shape.
type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Images   []string       `json:"images,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChatChunk is the normalized streaming unit all adapters converge to.
// A successful stream yields exactly one chunk with Done=true, and it is the
// last chunk (Content may be empty on it). A stream that fails mid-flight
// yields one final chunk with Err set and Done=true, then the channel closes.
type ChatChunk struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done"`
	Err      *Error `json:"-"`
}

// ModelInfo describes one model exposed by a provider.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Provider type identifiers. The type selects the adapter variant; everything
// in the openai family shares the OpenAI-compatible adapter.
const (
	TypeOllama           = "ollama"
	TypeOpenAI           = "openai"
	TypeOpenAICompatible = "openai_compatible"
	TypeLMStudio         = "lmstudio"
	TypeGroq             = "groq"
	TypeMistral          = "mistral"
	TypeOpenRouter       = "openrouter"
	TypeDeepSeek         = "deepseek"
	TypeCerebras         = "cerebras"
	TypeHuggingFace      = "huggingface"
	TypeAnthropic        = "anthropic"
	TypeGemini           = "gemini"
	TypeQwen             = "qwen"
	TypeCohere           = "cohere"
)

// Descriptor identifies one configured provider. Produced by the registry,
// consumed read-only here; the adapter layer never mutates or persists it.
type Descriptor struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	URL          string            `json:"url,omitempty"`
	Credential   string            `json:"-"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
	DefaultModel string            `json:"default_model,omitempty"`
}

// splitSystem extracts the first system message and returns the remaining
// turns in order. Later system-role entries are dropped: callers sending more
// than one system message are out of contract.
func splitSystem(messages []Message) (string, []Message) {
	system := ""
	seen := false
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if !seen {
				system = m.Content
				seen = true
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func optInt(opts map[string]any, key string) (int, bool) {
	f, ok := optFloat(opts, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// capInt returns min(v, ceiling).
func capInt(v, ceiling int) int {
	if v > ceiling {
		return ceiling
	}
	return v
}
