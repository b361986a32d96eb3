// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stream drives the lifecycle of one live media stream.
//
// A Controller owns a single session at a time: it attaches a Decoder to the
// stream URL, watches for data progress, classifies decoder faults and
// schedules reconnects with exponential backoff. Hosts only observe the
// resulting Status and ErrorMessage (via Snapshot or Subscribe); decoder
// errors are never returned to them.
//
// All session state is mutated on one goroutine. Public methods, decoder
// callbacks and timer callbacks post closures into an unbounded mailbox, so
// none of them block on I/O and none of them race.
package stream
