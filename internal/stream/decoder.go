// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import "io"

// Reporter receives asynchronous decoder events.
// Implementations handed out by the Controller are bound to one session
// generation; events from a torn-down session are dropped.
type Reporter interface {
	ManifestLoaded()
	// Progress signals that media data demonstrably advanced.
	Progress()
	Error(kind ErrorKind, fatal bool, detail string)
}

// Decoder is the adaptive-streaming capability the Controller drives.
// Every method must return promptly; loading happens in the background and
// outcomes are reported through the Reporter.
type Decoder interface {
	LoadSource(url string)
	AttachSink(sink io.Writer)
	StartLoad()
	StopLoad()
	RecoverMediaError()
	Destroy()
}

// DecoderFactory creates a decoder bound to a session reporter.
type DecoderFactory func(r Reporter) Decoder
