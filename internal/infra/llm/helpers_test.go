package llm

import (
	"context"
	"testing"
	"time"
)

// collectChunks drains a stream channel with a watchdog so a stuck adapter
// fails the test instead of hanging it.
func collectChunks(t *testing.T, ch <-chan ChatChunk) []ChatChunk {
	t.Helper()
	var chunks []ChatChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatalf("stream did not close within 5s (got %d chunks)", len(chunks))
		}
	}
}

// assertSingleTerminal checks the stream contract: exactly one Done=true
// chunk, and it is the last one.
func assertSingleTerminal(t *testing.T, chunks []ChatChunk) {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	doneCount := 0
	for i, c := range chunks {
		if c.Done {
			doneCount++
			if i != len(chunks)-1 {
				t.Errorf("Done=true chunk at index %d, want last index %d", i, len(chunks)-1)
			}
		}
	}
	if doneCount != 1 {
		t.Errorf("expected exactly 1 Done=true chunk, got %d", doneCount)
	}
}

// streamText concatenates the content of all chunks.
func streamText(chunks []ChatChunk) string {
	out := ""
	for _, c := range chunks {
		out += c.Content
	}
	return out
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
