package ipcchannel

// ReadyMarker is the text payload a worker publishes on its output
// channel once initialized (spec §4.2 step 2). Exported so both the
// executor (host side) and the reference worker binary (cmd/nodeworker)
// agree on the literal without duplicating it.
const ReadyMarker = "__worker_ready__"

// StreamEndMarker is the text payload the executor sends on a worker's
// input channel to request stream termination (spec §4.2 step 4).
const StreamEndMarker = "__stream_end__"
