package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicewire/duplex-core/core/llms"
	"github.com/voicewire/duplex-core/internal/utils"
)

func collectChunks(t *testing.T, chunks <-chan ResponseChunk) []ResponseChunk {
	t.Helper()
	var collected []ResponseChunk
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return collected
			}
			collected = append(collected, chunk)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for chunk stream to close")
		}
	}
}

func TestPipelineForwardsSpeakableChunksInOrder(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{tokenStream("Sure", ". Booking", " it now", ".")}}
	token := newCancellationToken(1)
	pipeline := newResponsePipeline(llm, "", nil, token, noopEventEmitter)

	done := make(chan struct{})
	var response llms.Response
	var err error
	go func() {
		defer close(done)
		response, err = pipeline.run(context.Background(), Turn{ID: 1, Utterance: "book it"}, nil)
	}()

	chunks := collectChunks(t, pipeline.Chunks())
	<-done

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if response.Content != "Sure. Booking it now." {
		t.Fatalf("expected full response content, got %q", response.Content)
	}

	wantTexts := []string{"Sure.", "Booking it now."}
	if len(chunks) != len(wantTexts) {
		t.Fatalf("expected %d chunks, got %v", len(wantTexts), chunks)
	}
	for i, want := range wantTexts {
		if chunks[i].Text != want || chunks[i].Ordinal != i+1 {
			t.Fatalf("expected chunk %d to be %q, got %+v", i+1, want, chunks[i])
		}
	}
	if !chunks[len(chunks)-1].IsLast {
		t.Fatalf("expected terminal chunk to be marked last")
	}
}

func TestPipelineStopsPromptlyOnCancellation(t *testing.T) {
	stream := tokenStream("One. ", "Two. ", "Three. ", "Four. ")
	stream.delay = 30 * time.Millisecond
	llm := &fakeLLM{streams: []*fakeStream{stream}}
	token := newCancellationToken(1)
	pipeline := newResponsePipeline(llm, "", nil, token, noopEventEmitter)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pipeline.run(context.Background(), Turn{ID: 1, Utterance: "count"}, nil)
	}()

	select {
	case <-pipeline.Chunks():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for first chunk")
	}
	token.Cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("pipeline did not stop promptly after cancellation")
	}
}

func TestPipelineSurfacesGenerationFailure(t *testing.T) {
	stream := tokenStream("Par")
	stream.err = errors.New("model exploded")
	llm := &fakeLLM{streams: []*fakeStream{stream}}
	token := newCancellationToken(1)
	pipeline := newResponsePipeline(llm, "", nil, token, noopEventEmitter)

	done := make(chan error, 1)
	go func() {
		_, err := pipeline.run(context.Background(), Turn{ID: 1, Utterance: "hi"}, nil)
		done <- err
	}()
	collectChunks(t, pipeline.Chunks())

	select {
	case err := <-done:
		if !errors.Is(err, ErrGenerationFailure) {
			t.Fatalf("expected generation failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for pipeline error")
	}
}

func TestPipelineExecutesToolCallsAndReprompts(t *testing.T) {
	type weatherArgs struct {
		City string `json:"city"`
	}
	tool := llms.NewTool("get_weather", "Reports the weather for a city.",
		func(args weatherArgs) (string, error) {
			return "sunny in " + args.City, nil
		})

	toolCallStream := &fakeStream{chunks: []llms.StreamChunk{
		llms.ToolCallChunk{
			Call:   llms.ToolCall{ID: "call-1", Name: "get_weather", Arguments: `{"city":"Zagreb"}`},
			Finish: utils.Ptr("tool_calls"),
		},
	}}
	llmClient := &fakeLLM{streams: []*fakeStream{toolCallStream, tokenStream("It is sunny in Zagreb.")}}

	token := newCancellationToken(1)
	pipeline := newResponsePipeline(llmClient, "", []llms.Tool{tool}, token, noopEventEmitter)

	done := make(chan struct{})
	var response llms.Response
	var err error
	go func() {
		defer close(done)
		response, err = pipeline.run(context.Background(), Turn{ID: 1, Utterance: "weather in Zagreb?"}, nil)
	}()
	chunks := collectChunks(t, pipeline.Chunks())
	<-done

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if llmClient.promptCount() != 2 {
		t.Fatalf("expected a re-prompt after tool execution, got %d calls", llmClient.promptCount())
	}
	if len(response.ToolCalls) != 1 || response.ToolCalls[0].Response != "sunny in Zagreb" {
		t.Fatalf("expected executed tool call in response, got %+v", response.ToolCalls)
	}
	if response.Content != "It is sunny in Zagreb." {
		t.Fatalf("expected content from the follow-up stream, got %q", response.Content)
	}
	if len(chunks) == 0 || chunks[0].Text != "It is sunny in Zagreb." {
		t.Fatalf("expected the follow-up content to be chunked, got %v", chunks)
	}
}
