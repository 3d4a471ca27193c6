// Package ascart composes the text-art bridge: a supervised conversion worker
// spoken to over newline-delimited JSON, and the widget sessions that present
// its results in a browser or a terminal.
package ascart
