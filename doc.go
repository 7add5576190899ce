// Package groupcore implements the client-side core of a group-chat SDK:
// group governance (membership, roles, moderation lists, join and invite
// workflows, member attributes) and an attachment transfer pipeline.
//
// The entry point is the Client type, which composes the subsystem
// packages and exposes the full operation surface. Mutating operations
// are serialized per group; each one validates its input, checks the
// acting user's permission, applies the change, and publishes exactly
// one notification event per recipient class through the configured
// transport.EventSink. Network transport, message delivery, and
// end-to-end encryption are external collaborators behind the
// transport package's interfaces.
//
// Basic usage:
//
//	opts := groupcore.NewOptions()
//	opts.SelfID = "alice"
//	client, err := groupcore.New(opts, sink, blobStore, receipts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	info, err := client.CreateGroup(ctx, groupcore.CreateGroupRequest{
//	    Name:    "engineering",
//	    Members: []string{"bob", "carol"},
//	})
package groupcore
