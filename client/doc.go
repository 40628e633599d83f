// Package client is the asynchronous core of a Firebase REST client. It
// queues tasks, runs them one at a time over a single connection and
// reports their progress through [AsyncResult] values.
//
// # Building a Client
//
// Use [New] with a socket (or an async transport) and functional options:
//
//	c, err := client.New(
//		client.WithSocket(conn.NewNetSocket(&tls.Config{}, 0)),
//		client.WithTokenProvider(tokens),
//		client.WithLogger(logger),
//	)
//
// # Sync and Async Tasks
//
// A sync request is driven by [Client.Send] until it finishes:
//
//	res, err := c.Send(ctx, client.Request{
//		Method: client.MethodGet,
//		URL:    "my-db.firebaseio.com",
//		Path:   "/users/1.json",
//	})
//
// An async request returns at once. Its result fills in as the poll loop
// runs, either by calling [Client.Process] or by running [Client.Run]
// in its own goroutine:
//
//	res, err := c.Send(ctx, client.Request{
//		Method:   client.MethodGet,
//		URL:      "my-db.firebaseio.com",
//		Path:     "/sensors.json",
//		SSE:      true,
//		Callback: func(r *client.AsyncResult) { fmt.Println(r.RTDB().Data()) },
//	})
//	go c.Run(ctx)
//
// Sync tasks jump the queue. A running async task is interrupted and
// resumes from the start once the sync task finishes. At most one event
// stream runs at a time and it is kept alive across idle windows,
// network drops and token changes.
//
// # Bodies and Sinks
//
// Request bodies come from a string, a blob or a [file.Config].
// Successful response bodies may be written to a [file.Config], any
// [io.Writer] or an [OTAUpdater]. Large uploads can be sent as a
// resumable session in ranged chunks.
//
// For running several clients or blocking sends side by side see [Group].
package client
