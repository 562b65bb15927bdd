package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// StreamAnthropic reduces an Anthropic SSE stream to the canonical event
// sequence, generalizing the content_block_start/delta/stop and
// message_start/delta/stop handling from the vendor chat model adapter.
// The returned channel is closed once the stream ends, errors, or ctx is
// cancelled.
func StreamAnthropic(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) <-chan StreamEvent {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var toolArgsJSON strings.Builder
		var thinkingSig strings.Builder
		blockIndex := -1
		currentBlockType := ""
		var usage Usage

		send(StreamEvent{Kind: EventStart})

		for stream.Next() {
			select {
			case <-ctx.Done():
				send(StreamEvent{Kind: EventError, Err: ctx.Err()})
				return
			default:
			}

			event := stream.Current()

			switch event.Type {
			case "message_start":
				usage.InputTokens = event.Message.Usage.InputTokens
				usage.CacheReadTokens = event.Message.Usage.CacheReadInputTokens
				usage.CacheCreationTokens = event.Message.Usage.CacheCreationInputTokens

			case "content_block_start":
				cb := event.ContentBlock
				blockIndex = int(event.Index)
				currentBlockType = cb.Type
				switch cb.Type {
				case "tool_use":
					toolArgsJSON.Reset()
					if !send(StreamEvent{Kind: EventToolCallStart, Index: blockIndex, ToolCallID: cb.ID, ToolCallName: cb.Name}) {
						return
					}
				case "text":
					if !send(StreamEvent{Kind: EventTextStart, Index: blockIndex}) {
						return
					}
				case "thinking":
					thinkingSig.Reset()
					if !send(StreamEvent{Kind: EventThinkingStart, Index: blockIndex}) {
						return
					}
				}

			case "content_block_delta":
				delta := event.Delta
				switch delta.Type {
				case "text_delta":
					if !send(StreamEvent{Kind: EventTextDelta, Index: blockIndex, TextDelta: delta.Text}) {
						return
					}
				case "thinking_delta":
					if !send(StreamEvent{Kind: EventThinkingDelta, Index: blockIndex, ThinkingDelta: delta.Thinking}) {
						return
					}
				case "input_json_delta":
					toolArgsJSON.WriteString(delta.PartialJSON)
					if !send(StreamEvent{Kind: EventToolCallDelta, Index: blockIndex, ArgsDelta: delta.PartialJSON}) {
						return
					}
				case "signature_delta":
					thinkingSig.WriteString(delta.Signature)
				}

			case "content_block_stop":
				switch currentBlockType {
				case "tool_use":
					if !send(StreamEvent{Kind: EventToolCallEnd, Index: blockIndex, ArgsDelta: toolArgsJSON.String()}) {
						return
					}
				case "thinking":
					// Anthropic signs extended-thinking blocks so the
					// signature can be replayed on a later turn; vendors
					// that don't supply one get the placeholder instead of
					// a hard failure.
					sig := thinkingSig.String()
					if sig == "" {
						sig = ThoughtSignaturePlaceholder
					}
					if !send(StreamEvent{Kind: EventThinkingEnd, Index: blockIndex, Signature: sig}) {
						return
					}
				default:
					if !send(StreamEvent{Kind: EventTextEnd, Index: blockIndex}) {
						return
					}
				}
				currentBlockType = ""

			case "message_delta":
				usage.OutputTokens = event.Usage.OutputTokens

			case "message_stop":
				send(StreamEvent{Kind: EventUsage, Usage: &usage})
				send(StreamEvent{Kind: EventDone})
				return
			}
		}

		if err := stream.Err(); err != nil {
			send(StreamEvent{Kind: EventError, Err: err})
			return
		}
	}()

	return out
}
