package iocp

import "unsafe"

// CompletionStatus is one completion packet.
//
// The port never transforms its fields: what one side posts is exactly what
// the other side dequeues.
type CompletionStatus struct {
	// BytesTransferred is the number of bytes transferred by the operation,
	// or whatever value the poster chose for a synthetic packet.
	BytesTransferred uint32
	// CompletionKey is the application-defined tag attached at Associate
	// time, or chosen by the poster. Opaque to the port.
	CompletionKey uintptr
	// Overlapped addresses the operation context block handed to the
	// asynchronous call that produced this packet, or nil for synthetic
	// packets posted without one. Real operations embed it as the head of a
	// larger operation-specific allocation, so the port never copies,
	// frees, or reads through it. The pointee must stay alive until a Get
	// delivers the packet.
	Overlapped unsafe.Pointer
}
