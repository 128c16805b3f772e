// Package wire implements the binary messages exchanged with the engine.
//
// Every message is encoded with the Protocol Buffers wire format, so any
// engine built against the same .proto schema interoperates with this
// package. Messages are written by hand on top of protowire rather than
// generated; each type documents its field layout next to its declaration.
//
// # Encoding
//
// Marshal output is deterministic: fields are written in field-number
// order, map entries are sorted by key and zero scalars are omitted unless
// they are the set member of a oneof. Encoding the same value twice yields
// identical bytes.
//
// # Unions
//
// Oneof messages (BackendInput, BackendOutput, BackendError,
// TemplateRequirement, RenderedTemplateNode, AVTag, Progress and
// MediaSyncProgress) are modeled as sealed interfaces. Decoding enforces
// that exactly one member is present. A message with zero or several members
// fails with errors.KindTagCount, and a field number outside the known set
// fails with errors.KindUnknownDiscriminant. Both satisfy
// errors.IsMalformedUnion.
//
// BackendError is the one exception: an unknown error kind decodes
// successfully and is left for the caller to reject.
package wire
