// Package audit provides the asynchronous audit pipeline: an Event model,
// a Sink interface with NoOp, Channel, and JSONWriter implementations,
// and a buffered Dispatcher that decouples emission from delivery.
package audit
