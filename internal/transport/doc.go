// Package transport supplies byte ranges of a remote PDF to a rendering
// engine on demand.
//
// A Transport is bound to one URL and the file's total length. The engine
// calls RequestDataRange whenever it needs bytes; the transport issues one
// HTTP GET with a Range header and hands the body to the delivery hook.
//
//	t := transport.New(length, url,
//	    transport.WithDataRange(func(begin int64, data []byte) {
//	        engine.OnDataRange(begin, data)
//	    }),
//	    transport.WithLogger(logger),
//	)
//	t.RequestDataRange(ctx, 100, 200) // Range: bytes=100-199
//
// Requests are independent: there is no cache, no retry and no ordering
// between concurrent calls. A failed request is logged and never delivered,
// so callers that need to know about failures must either set an error hook,
// notice the missing delivery, or use the blocking Fetch.
package transport
