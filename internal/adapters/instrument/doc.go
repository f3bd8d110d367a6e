// Package instrument provides the two ports.Instrument variants.
//
// [Hardware] speaks SCPI over a [ports.Transport]: a Prologix USB-GPIB
// controller, a serial line or a raw TCP socket, selected from a VISA-style
// resource string by [Open]. [Synthetic] generates plausible readings with
// no I/O at all and is used in debug mode and in tests.
package instrument
