package socketclient

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/codefionn/turing/internal/chat"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/state"
)

// ChatChannel sends to and receives from the chat group of a document while
// one of its sections is being edited.
type ChatChannel struct {
	*chat.Sender
	*chat.Receiver
	// Document is the URI of the document the channel belongs to.
	Document string
}

// OpenChat joins the chat group named by grant on ifi (nil for the default
// interface) and sends as from.
func OpenChat(grant *protocol.EditGrant, from string, ifi *net.Interface) (*ChatChannel, error) {
	group, err := netip.ParseAddr(grant.ChatAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid chat address %q: %w", grant.ChatAddress, err)
	}
	uri, err := state.ParseURI(grant.Section.URI)
	if err != nil {
		return nil, err
	}
	document := uri.DocumentOf().String()

	receiver, err := chat.NewReceiver(group, grant.ChatPort, ifi)
	if err != nil {
		return nil, err
	}
	sender, err := chat.NewSender(group, grant.ChatPort, from, document)
	if err != nil {
		receiver.Close()
		return nil, err
	}
	return &ChatChannel{Sender: sender, Receiver: receiver, Document: document}, nil
}

// Close leaves the group.
func (ch *ChatChannel) Close() error {
	return errors.Join(ch.Sender.Close(), ch.Receiver.Close())
}
