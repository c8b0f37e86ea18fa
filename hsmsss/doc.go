// Package hsmsss provides an implementation of HSMS-SS (High-Speed SECS Message Services - Single Session)
// for communication with semiconductor manufacturing equipment according to the SEMI E37 standard.
// It builds upon the message model and codec of the hsms package and runs one HSMS connection
// in active (connecting) or passive (listening) mode.
//
// Key Features:
//   - Connection Management: connects or accepts, runs the select procedure, and reconnects after
//     every drop until stopped.
//   - Transactions: primary messages that expect a reply return a Transaction that resolves with
//     the reply, a T3 timeout, a reject or a closed connection.
//   - Timers: T3, T5, T6, T7 and T8 are enforced; a periodic linktest keeps an idle link alive.
//   - Events: established, dropped, timeout, alive and recv events are delivered in order on a
//     single channel.
//   - Configuration: functional options, or a YAML file loaded with LoadConfigFile.
//
// Connection Establishment:
//   - Create a ConnectionConfig with NewConnectionConfig (or LoadConfigFile).
//   - Create the connection with NewConnection.
//   - Call Start. It returns at once; wait for an EventEstablished event, or use WaitState.
//
// Message Sending:
//   - Build a message with hsms.NewDataMessageBuilder and pass it to Send.
//   - Reply to a received primary message with hsms.NewReply and Send.
//
// Connection Termination:
//   - Call Stop. A selected connection sends separate.req first; pending transactions fail with
//     hsms.ErrConnClosed. A stopped connection can be started again.
//   - Call Close when the connection is no longer needed. It stops the connection and closes
//     the event channel, which ends a range over Events.
//
// Usage Example:
//
//	cfg, err := hsmsss.NewConnectionConfig("127.0.0.1", 5000,
//	    hsmsss.WithActive(),
//	    hsmsss.WithT3Timeout(30*time.Second),
//	)
//	// ... handle error ...
//	conn, err := hsmsss.NewConnection(cfg)
//	// ... handle error ...
//
//	if err := conn.Start(ctx); err != nil {
//	    // ... handle error ...
//	}
//	defer conn.Close()
//
//	for ev := range conn.Events() {
//	    switch ev.Kind {
//	    case hsmsss.EventEstablished:
//	        msg, _ := hsms.NewDataMessageBuilder().SetStream(1).SetFunc(1).Build()
//	        tx, err := conn.Send(msg)
//	        // ... handle error, tx.Wait(ctx) returns the reply ...
//	    case hsmsss.EventRecv:
//	        if ev.Message.IsPrimary() && ev.Message.ReplyExpected() {
//	            reply, _ := hsms.NewReply(ev.Message, ev.Message.Items()...)
//	            _, _ = conn.Send(reply)
//	        }
//	    }
//	}
package hsmsss
