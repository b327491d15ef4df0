// Package wiretrace records matrix command exchanges to a CBOR file and
// reads them back.
//
// Each record holds the command, the raw reply bytes before sanitising, the
// clean lines and the outcome. Traces are append-only and can be inspected
// offline with "matrixctl trace FILE" when a firmware revision starts
// answering in an unexpected shape.
package wiretrace
