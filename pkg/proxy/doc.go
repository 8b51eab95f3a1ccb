/*
Package proxy implements the Application Proxy (§4.G / §6): the
transport-facing half of the core. It maintains a pid → Transport map, runs
one dispatcher goroutine per paired connection that reads inbound frames
and routes them either onto the dispatcher itself (APP_PAIR and APP_EXIT,
to attach or tear down the connection synchronously, and BBQ_RESP/APP_RESP
replies, delivered to their waiting caller) or onto a short-lived
per-request goroutine (every other inbound type), and implements sync.ExecutorProxy so the
synchronization manager can drive the PreChange/SyncChange/DoChange/
PostChange protocol outbound over the same connection.

The wire format is the fixed-header framed protocol of §6: a Header
followed by a length-prefixed payload. Transport is a small interface so
tests (and, eventually, alternative substrates) don't need a real socket —
this package ships one implementation over anything satisfying
io.ReadWriteCloser, which a net.Conn or a net.Pipe half both do.
*/
package proxy
