// Package atlas controls AtlasIED zone processors (AZM4, AZM8, Atmosphere)
// over their ASCII parameter protocol.
//
// Commands address parameters by a 0-based hardware index while operators and
// the API speak in 1-based zone channels. The index conversion happens in the
// codec and nowhere else.
//
// The Controller applies volume and mute changes optimistically: local state
// updates first, the command goes out second, and any failure triggers a
// wholesale reload of the zone from hardware so a stale optimistic value is
// never left on display. Multi-output master volume shifts every output by a
// common additive delta, preserving relative spacing except where the 0..100
// clamp truncates it.
package atlas
