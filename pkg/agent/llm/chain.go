package llm

import "context"

// Middleware wraps an LLMClient with additional behavior. Middlewares are
// composed with Chain to form a processing pipeline.
type Middleware func(next LLMClient) LLMClient

// clientFunc adapts plain functions to the LLMClient interface.
type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream    func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, req)
}

func (f clientFunc) GetModelName() string {
	return f.modelName()
}

// WrapClient creates an LLMClient from function implementations. Middleware
// implementations use this to wrap behavior around the next client.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	modelName func() string,
) LLMClient {
	return clientFunc{complete: complete, stream: stream, modelName: modelName}
}

// Chain composes middlewares around a base client. The first middleware in
// the slice becomes the outermost wrapper:
//
//	Chain(client, mw1, mw2) => mw1 -> mw2 -> client
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
