// Package journal persists session events to SQLite so operators can
// reconstruct what peers did after the fact.
//
// The daemon records handshakes, producer claims and rejections, and
// disconnects; the CLI reads them back. The journal is diagnostic data, not
// the source of truth: live session state lives in the daemon's registry and
// losing the journal loses history only.
package journal
