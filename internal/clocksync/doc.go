// Package clocksync estimates the clock offset between this process and a
// peer from ping/pong round trips over a control channel.
//
// Each exchange yields three timestamps: local send (t0), peer reply (t1),
// and local receive (t2). Assuming symmetric latency the one-way offset is
// ((t1-t0)+(t1-t2))/2. Samples with outlier round-trip times are rejected so
// a scheduling hiccup cannot yank the time base; accepted samples are folded
// in with exponential smoothing so dependent playback never sees the clock
// jump, unless the accumulated desync crosses a hard bound, in which case the
// estimate snaps. Drift rate comes from a linear regression over the sample
// window.
package clocksync
