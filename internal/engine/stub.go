// ABOUTME: Offline engine that echoes the request message
// ABOUTME: Used when no model API key is configured

package engine

import "context"

// StubPrefix starts every stub reply.
const StubPrefix = "Dexi (stub): "

// Stub answers without contacting a model.
type Stub struct{}

// Run returns the echoed reply.
func (Stub) Run(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return StubPrefix + req.Message, nil
}

// Stream sends the echoed reply as word and whitespace chunks.
func (Stub) Stream(ctx context.Context, req Request, out chan<- Update) error {
	for _, chunk := range Chunks(StubPrefix + req.Message) {
		if err := Send(ctx, out, Update{Kind: KindText, Text: chunk}); err != nil {
			return err
		}
	}
	return nil
}
