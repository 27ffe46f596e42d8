package delivery

import "context"

// Message is one composed, ready-to-transmit email.
type Message struct {
	To       string
	From     string
	Subject  string
	HTML     string
	Text     string
	Category string // provider-side analytics tag
}

// Client transmits a single composed email and returns the provider message
// id. All provider failure modes (network, auth, rejection) collapse to one
// error; the queue processor only consults its attempt counter when deciding
// retry versus fail.
type Client interface {
	Send(ctx context.Context, msg Message) (string, error)
}
