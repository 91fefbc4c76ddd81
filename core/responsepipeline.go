package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	responseChunkQueueCapacity = 16
	// maxToolRounds bounds tool-call loops so a model that keeps requesting
	// tools cannot spin the pipeline forever.
	maxToolRounds = 4
)

// responsePipeline streams model output for a committed turn, groups tokens
// into speakable chunks, and forwards them to playback. It checks the
// cancellation token between every forwarded chunk and stops within one
// scheduling step of cancellation, discarding late model output.
//
// Collaborator failures surface as a terminal error; the pipeline never
// retries on its own.
type responsePipeline struct {
	llm          LLMWithStream
	instructions string
	tools        []llms.Tool

	token *cancellationToken
	emit  eventEmitter

	chunks chan ResponseChunk
}

func newResponsePipeline(llm LLMWithStream, instructions string, tools []llms.Tool, token *cancellationToken, emit eventEmitter) *responsePipeline {
	return &responsePipeline{
		llm:          llm,
		instructions: instructions,
		tools:        tools,
		token:        token,
		emit:         emit,
		chunks:       make(chan ResponseChunk, responseChunkQueueCapacity),
	}
}

// Chunks is the ordered chunk stream consumed by the playback controller.
// It is closed once generation finishes, fails, or is cancelled.
func (p *responsePipeline) Chunks() <-chan ResponseChunk {
	return p.chunks
}

// run drives generation for the turn and returns the assembled response.
// The chunk channel is closed on return.
func (p *responsePipeline) run(ctx context.Context, turn Turn, history []llms.Turn) (response llms.Response, err error) {
	ctx, span := tracer.Start(ctx, "generate response")
	defer span.End()
	span.SetAttributes(attribute.Int64("turn.id", int64(turn.ID)))
	defer close(p.chunks)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.token.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	p.emit(events.NewAssistantResponseStarted(turn.ID, turn.Utterance))

	assembler := &chunkAssembler{}
	var content strings.Builder
	exchange := append([]llms.Turn(nil), history...)

	for round := 0; ; round++ {
		stream, streamErr := p.llm.PromptWithStream(ctx, turn.Utterance,
			llms.WithSystemPrompt(p.instructions),
			llms.WithTurns(exchange...),
			llms.WithTools(p.tools...),
		)
		if streamErr != nil {
			err = fmt.Errorf("failed to open model stream: %w: %w", ErrGenerationFailure, streamErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return response, err
		}

		var pendingCalls []llms.ToolCall
		for chunk, chunkErr := range stream.Chunks(ctx) {
			if p.token.Cancelled() {
				return response, nil
			}
			if chunkErr != nil {
				err = fmt.Errorf("model stream failed: %w: %w", ErrGenerationFailure, chunkErr)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return response, err
			}

			switch typed := chunk.(type) {
			case llms.StreamContentChunk:
				content.WriteString(typed.Content())
				for _, speakable := range assembler.push(typed.Content()) {
					if !p.forward(ctx, speakable) {
						return response, nil
					}
				}
			case llms.StreamToolCallChunk:
				pendingCalls = append(pendingCalls, typed.ToolCall())
			}
		}
		if p.token.Cancelled() || ctx.Err() != nil {
			return response, nil
		}

		if len(pendingCalls) == 0 {
			break
		}
		if round+1 >= maxToolRounds {
			logger.Warn("tool round limit reached, finishing response without further calls")
			break
		}

		executed := p.executeToolCalls(ctx, pendingCalls)
		response.ToolCalls = append(response.ToolCalls, executed...)
		exchange = append(exchange, llms.Turn{Role: llms.TurnRoleAssistant, ToolCalls: executed})
	}

	if !p.forward(ctx, assembler.flush()) {
		return response, nil
	}

	response.Content = strings.TrimSpace(content.String())
	p.emit(events.NewAssistantResponseFinal(response.Content))
	return response, nil
}

// forward hands a chunk to playback, reporting false when cancellation won
// instead.
func (p *responsePipeline) forward(ctx context.Context, chunk ResponseChunk) bool {
	select {
	case p.chunks <- chunk:
		p.emit(events.NewAssistantResponseChunk(chunk.Ordinal, chunk.Text, chunk.IsLast))
		return true
	case <-p.token.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *responsePipeline) executeToolCalls(ctx context.Context, calls []llms.ToolCall) []llms.ToolCall {
	executed := make([]llms.ToolCall, 0, len(calls))
	for _, call := range calls {
		_, span := tracer.Start(ctx, "execute tool")
		span.SetAttributes(attribute.String("tool.name", call.Name))

		tool, found := p.findTool(call.Name)
		if !found {
			call.Response = fmt.Sprintf("error: unknown tool %q", call.Name)
			span.SetStatus(codes.Error, call.Response)
			span.End()
			executed = append(executed, call)
			continue
		}

		result, err := tool.Execute(call.Arguments)
		if err != nil {
			call.Response = fmt.Sprintf("error: %v", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			call.Response = result
		}
		span.End()
		executed = append(executed, call)
	}
	return executed
}

func (p *responsePipeline) findTool(name string) (llms.Tool, bool) {
	for _, tool := range p.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return llms.Tool{}, false
}
