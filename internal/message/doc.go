// Package message encodes and decodes the HDF5 object header messages a
// container needs: dataspace, datatype, fill value, data layout, filter
// pipeline, links, link info, group info, attributes and continuations.
//
// Every message type implements [Message]. Types the writer never emits are
// kept as [Unknown] so a loaded header can still be inspected.
//
// Decoding goes through [Parse]; encoding through each message's Serialize
// method, which writes the message body (without the object header message
// prefix) to a [binary.Writer].
package message
