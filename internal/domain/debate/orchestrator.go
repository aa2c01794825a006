package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yblis/nova/internal/infra/llm"
)

// maxConcurrentStreams bounds the parallel mode's simultaneous vendor calls.
const maxConcurrentStreams = 4

// Chunk is one unit of debate output, tagged with the emitting participant.
// The per-participant stream contract mirrors the adapter one: each
// participant produces exactly one Done=true chunk, carrying Err if its
// stream failed. Start marks the round boundary in sequential mode.
type Chunk struct {
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	Content       string     `json:"content,omitempty"`
	Thinking      string     `json:"thinking,omitempty"`
	Round         int        `json:"round,omitempty"`
	Start         bool       `json:"start,omitempty"`
	Done          bool       `json:"done"`
	Err           *llm.Error `json:"-"`
}

// DescriptorSource resolves a provider id to an adapter descriptor. Satisfied
// by *provider.Registry.
type DescriptorSource interface {
	Descriptor(id string) (llm.Descriptor, error)
	Active() (llm.Descriptor, error)
}

// Orchestrator fans a debate out over the configured providers.
type Orchestrator struct {
	providers DescriptorSource
	factory   func(llm.Descriptor) (llm.Client, error)
}

// NewOrchestrator builds an orchestrator over a provider source.
func NewOrchestrator(providers DescriptorSource) *Orchestrator {
	return &Orchestrator{providers: providers, factory: llm.ForProvider}
}

// Parallel streams every participant's answer concurrently, interleaving
// chunks as they arrive. One participant failing does not interrupt the
// others: the failure surfaces as that participant's terminal chunk. The
// returned channel closes once every participant has finished or ctx ends.
func (o *Orchestrator) Parallel(ctx context.Context, participants []Participant, messages []llm.Message, options map[string]any) (<-chan Chunk, error) {
	if len(participants) == 0 {
		return nil, errors.New("debate: no participants")
	}
	for i := range participants {
		participants[i].Normalize()
	}

	out := make(chan Chunk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentStreams)
	go func() {
		// Launch from a goroutine: over the concurrency limit g.Go blocks,
		// and the consumer only starts reading once this function returns.
		for _, p := range participants {
			g.Go(func() error {
				o.streamOne(gctx, p, 0, messages, options, out)
				return nil
			})
		}
		g.Wait() //nolint:errcheck
		close(out)
	}()
	return out, nil
}

// Sequential runs the participants one at a time for the requested number of
// rounds. Each participant sees the current round's earlier answers injected
// into its context as attributed assistant turns, so later speakers can react
// to earlier ones. A Start chunk precedes each participant's answer.
func (o *Orchestrator) Sequential(ctx context.Context, participants []Participant, userMessage string, history []llm.Message, rounds int, options map[string]any) (<-chan Chunk, error) {
	if len(participants) == 0 {
		return nil, errors.New("debate: no participants")
	}
	if rounds < 1 {
		rounds = 1
	}
	for i := range participants {
		participants[i].Normalize()
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		// Latest full answer per participant, refreshed as rounds progress.
		responses := map[string]string{}
		for round := 1; round <= rounds; round++ {
			for _, p := range participants {
				if ctx.Err() != nil {
					return
				}
				start := Chunk{ParticipantID: p.ID, Name: p.Name, Color: p.Color, Round: round, Start: true}
				if !send(ctx, out, start) {
					return
				}

				messages := o.sequentialContext(p, participants, userMessage, history, responses)
				full := o.relayParticipant(ctx, p, round, messages, options, out)
				responses[p.ID] = full
			}
		}
	}()
	return out, nil
}

// sequentialContext assembles one participant's view: the conversation
// history, the user's message, then each other participant's answer as an
// attributed turn followed by a reaction prompt.
func (o *Orchestrator) sequentialContext(p Participant, participants []Participant, userMessage string, history []llm.Message, responses map[string]string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1+2*len(participants))
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	for _, other := range participants {
		if other.ID == p.ID {
			continue
		}
		response := responses[other.ID]
		if response == "" {
			continue
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("[%s]: %s", other.Name, response)},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("React to %s's response above.", other.Name)},
		)
	}
	return messages
}

// relayParticipant streams one participant into out and returns the full
// assembled answer for cross-participant context.
func (o *Orchestrator) relayParticipant(ctx context.Context, p Participant, round int, messages []llm.Message, options map[string]any, out chan<- Chunk) string {
	var full strings.Builder
	for chunk := range o.openStream(ctx, p, round, messages, options) {
		full.WriteString(chunk.Content)
		if !send(ctx, out, chunk) {
			return full.String()
		}
	}
	return full.String()
}

// streamOne streams one participant into a shared channel (parallel mode).
func (o *Orchestrator) streamOne(ctx context.Context, p Participant, round int, messages []llm.Message, options map[string]any, out chan<- Chunk) {
	for chunk := range o.openStream(ctx, p, round, messages, options) {
		if !send(ctx, out, chunk) {
			return
		}
	}
}

// openStream resolves the participant's provider, opens the vendor stream and
// converts it to debate chunks. Every failure path collapses to a single
// terminal error chunk so the debate as a whole keeps going.
func (o *Orchestrator) openStream(ctx context.Context, p Participant, round int, messages []llm.Message, options map[string]any) <-chan Chunk {
	out := make(chan Chunk, 1)

	fail := func(err error) {
		e := llm.AsError(err)
		if e == nil {
			e = llm.NewError(err.Error(), "", llm.KindUnknown)
		}
		slog.Error("debate participant stream failed", "participant", p.Name, "err", err)
		out <- Chunk{ParticipantID: p.ID, Name: p.Name, Color: p.Color, Round: round, Done: true, Err: e}
		close(out)
	}

	var (
		desc llm.Descriptor
		err  error
	)
	if p.ProviderID == "" {
		desc, err = o.providers.Active()
	} else {
		desc, err = o.providers.Descriptor(p.ProviderID)
	}
	if err != nil {
		fail(fmt.Errorf("provider %s: %w", p.ProviderID, err))
		return out
	}
	client, err := o.factory(desc)
	if err != nil {
		fail(err)
		return out
	}

	chatMessages := messages
	if p.SystemPrompt != "" {
		chatMessages = append([]llm.Message{{Role: llm.RoleSystem, Content: p.SystemPrompt}}, messages...)
	}
	stream, err := client.ChatStream(ctx, llm.ChatRequest{Model: p.Model, Messages: chatMessages, Options: options})
	if err != nil {
		fail(err)
		return out
	}

	go func() {
		defer close(out)
		for chunk := range stream {
			c := Chunk{
				ParticipantID: p.ID, Name: p.Name, Color: p.Color,
				Content: chunk.Content, Thinking: chunk.Thinking,
				Round: round, Done: chunk.Done, Err: chunk.Err,
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
