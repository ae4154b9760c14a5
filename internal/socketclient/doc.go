// Package socketclient is a Go client for the document server's request protocol.
//
// A Client owns one TCP connection. A background reader routes every response
// to the request that carries the same request ID and collects invite
// notifications, which the server pushes without a request ID.
//
// Basic Usage
//
//	client, err := socketclient.Dial(ctx, "localhost:2000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Register(ctx, "alice", "password1"); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := client.Login(ctx, "alice", "password1"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.CreateDocument(ctx, "notes", 3); err != nil {
//	    log.Fatal(err)
//	}
//
//	grant, err := client.EditSection(ctx, "alice", "notes", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch, err := socketclient.OpenChat(grant, "alice", nil)
//	if err == nil {
//	    _ = ch.Send("editing the intro")
//	    ch.Close()
//	}
//	err = client.EndEdit(ctx, "alice", "notes", 0, "Introduction")
//
// # Errors
//
// Server failures are returned as *SocketError carrying the wire code. They
// match the failure kinds of package state:
//
//	if errors.Is(err, state.ErrSectionLocked) {
//	    // somebody else is editing
//	}
//
// # Invites
//
// Invites arrive in front of the response to the invitee's next request. They
// are handed to the callback set with SetInviteCallback, or kept until
// TakeInvites is called.
package socketclient
