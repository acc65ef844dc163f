// Package hle translates IPC command buffers between an emulated client
// process and a high-level emulated service.
//
// A RequestContext lives for exactly one request/response cycle:
//  1. PopulateFromIncoming copies the client's command buffer into the
//     context, resolving handles against the client's handle table,
//     injecting the client's process id and reading static buffers out of the
//     client's memory.
//  2. The service reads CommandBuffer(), looks objects up with
//     GetIncomingHandle and buffers with GetStaticBuffer, then writes its
//     reply into CommandBuffer(), staging objects with AddOutgoingHandle and
//     payloads with AddStaticBuffer.
//  3. WriteToOutgoing writes the reply into the client's command buffer,
//     installing staged objects in the client's handle table and copying
//     static buffers into the client's memory.
//  4. Close releases every object reference the context still holds.
//
// Handle Transfer:
//   - Move: the sender's handle is closed once the object is recorded
//   - Copy: the sender's handle is left open
//   - Handle 0 is the null object and never touches a handle table
//
// Errors:
//   - ErrMalformedBuffer: header counts disagree with the words present
//   - ErrUnknownHandle: a non-zero handle or placeholder did not resolve
//   - ErrUnmappedMemory: a static buffer range was not accessible
//   - ErrContextClosed: the context was used after Close
//
// A failed pass stops at the first error and rolls nothing back: handles
// already moved stay moved and words already written stay written. Discard
// the context after a failure.
//
// A RequestContext is not safe for concurrent use. The handle tables, address
// spaces and object store it is given are expected to serialize themselves.
package hle
