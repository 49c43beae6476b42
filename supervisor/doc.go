// Package supervisor owns the lifecycle of the gateway's three broker
// sockets: connecting them, watching them with a heartbeat, and driving
// reconnection when liveness is lost. It is the only component that calls
// transport.DialTCP and transport.NewMultiplexer — everything else reaches
// the broker through the *transport.Multiplexer the supervisor hands out.
package supervisor
