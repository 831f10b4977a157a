// Package dispatch fans a consumed change event out to every subscribed
// connection.
//
// Deliveries run concurrently and settle independently: one connection's
// failure never blocks or fails a sibling's delivery. A push that reports the
// endpoint gone prunes that connection from the subscription directory; any
// other delivery failure is logged and left for the next event to retry
// naturally.
package dispatch
