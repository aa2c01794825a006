// Package debate orchestrates multi-model conversations: several configured
// providers answer the same prompt, either in parallel with interleaved
// streams or sequentially with each participant seeing the others' answers.
package debate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yblis/nova/internal/infra/llm"
)

// Participant is one debating model: a provider, a model name and an optional
// persona. Color tags the participant in the UI stream.
type Participant struct {
	ID           string `json:"id"`
	ProviderID   string `json:"provider_id"`
	Model        string `json:"model"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Normalize fills derivable fields: a fresh id, the model as display name and
// the neutral color.
func (p *Participant) Normalize() {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Name == "" {
		p.Name = p.Model
	}
	if p.Color == "" {
		p.Color = "zinc"
	}
}

// ColorFor returns the UI color associated with a provider type.
func ColorFor(providerType string) string {
	if meta, ok := llm.MetaFor(providerType); ok && meta.Color != "" {
		return meta.Color
	}
	return "zinc"
}

// ApplyPersonas resolves each participant's effective persona before a
// debate starts. A non-empty override replaces every persona; otherwise
// participants keep their own SystemPrompt and the rest get one synthesized
// from the lineup. Participants are normalized first so names are available.
func ApplyPersonas(participants []Participant, override, topic string) {
	for i := range participants {
		participants[i].Normalize()
	}
	for i := range participants {
		if override != "" {
			participants[i].SystemPrompt = override
			continue
		}
		participants[i].SystemPrompt = BuildSystemPrompt(participants[i], participants, topic)
	}
}

// BuildSystemPrompt synthesizes a debate persona for a participant without an
// explicit system prompt. The persona names the other participants and sets
// the debate etiquette.
func BuildSystemPrompt(p Participant, others []Participant, topic string) string {
	if p.SystemPrompt != "" {
		return p.SystemPrompt
	}
	names := make([]string, 0, len(others))
	for _, o := range others {
		if o.ID != p.ID {
			names = append(names, o.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an AI assistant taking part in a discussion.\n\n", p.Name)
	fmt.Fprintf(&b, "You are debating with other AIs: %s.\n\n", strings.Join(names, ", "))
	b.WriteString("Debate rules:\n")
	b.WriteString("1. State your opinions clearly and back them with arguments\n")
	b.WriteString("2. React to the other participants' arguments when relevant\n")
	b.WriteString("3. Stay respectful, but do not hesitate to defend your point of view\n")
	b.WriteString("4. Bring unique perspectives based on your knowledge\n")
	b.WriteString("5. Keep it concise and on topic\n")
	if topic != "" {
		fmt.Fprintf(&b, "\nDebate topic: %s\n", topic)
	}
	return b.String()
}
