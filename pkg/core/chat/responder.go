package chat

import "context"

// GlobalResponder binds the client to the global assistant endpoint. It
// satisfies the turn controller's Responder port.
type GlobalResponder struct {
	client *Client
}

// Global returns a responder for the global assistant.
func (c *Client) Global() *GlobalResponder {
	return &GlobalResponder{client: c}
}

// Respond sends one turn to the global assistant.
func (r *GlobalResponder) Respond(ctx context.Context, req Request) (*Response, error) {
	return r.client.GlobalChat(ctx, req)
}

// DocumentResponder binds the client to one document's assistant endpoint.
// The document id is fixed for the responder's lifetime.
type DocumentResponder struct {
	client *Client
	docID  string
}

// Document returns a responder scoped to docID.
func (c *Client) Document(docID string) *DocumentResponder {
	return &DocumentResponder{client: c, docID: docID}
}

// DocumentID returns the document this responder is scoped to.
func (r *DocumentResponder) DocumentID() string {
	return r.docID
}

// Respond sends one turn to the per-document assistant.
func (r *DocumentResponder) Respond(ctx context.Context, req Request) (*Response, error) {
	return r.client.DocumentChat(ctx, r.docID, req)
}
