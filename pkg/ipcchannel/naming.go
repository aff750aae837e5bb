// Package ipcchannel implements the session-scoped, shared-memory IPC
// transport between the host runtime and out-of-process worker nodes
// (spec §3.4, §4.1, §6.5).
package ipcchannel

import (
	"fmt"
	"strings"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// Direction is input or output relative to the worker process.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Error kinds for the IPC subsystem (spec §7 "IPC" taxonomy).
const (
	KindPublisherCreationFailed  rterr.Kind = "ipc.publisher_creation_failed"
	KindSubscriberCreationFailed rterr.Kind = "ipc.subscriber_creation_failed"
	KindChannelNameMismatch      rterr.Kind = "ipc.channel_name_mismatch"
	KindSendBufferFull           rterr.Kind = "ipc.send_buffer_full"
	KindDeserializationError     rterr.Kind = "ipc.deserialization_error"
	KindShutdownInProgress       rterr.Kind = "ipc.shutdown_in_progress"
	KindUnsupportedType          rterr.Kind = "ipc.unsupported_type"
	KindReceiveTimeout           rterr.Kind = "ipc.receive_timeout"
)

// ChannelName builds the mandatory `{session_id}_{node_id}_{input|output}`
// channel name (spec §3.4, §4.1).
func ChannelName(sessionID, nodeID string, dir Direction) string {
	return fmt.Sprintf("%s_%s_%s", sessionID, nodeID, dir)
}

// ValidateChannelName rejects any name that does not match the mandatory
// pattern, and in particular rejects cross-session aliasing attempts:
// callers must supply the sessionID they believe they own, and the name
// must be prefixed by exactly that session ID.
func ValidateChannelName(name, expectSessionID string) error {
	prefix := expectSessionID + "_"
	if !strings.HasPrefix(name, prefix) {
		return rterr.New(KindChannelNameMismatch, fmt.Sprintf("channel %q does not belong to session %q", name, expectSessionID))
	}
	rest := strings.TrimPrefix(name, prefix)
	if !strings.HasSuffix(rest, "_"+string(DirectionInput)) && !strings.HasSuffix(rest, "_"+string(DirectionOutput)) {
		return rterr.New(KindChannelNameMismatch, fmt.Sprintf("channel %q has no recognized direction suffix", name))
	}
	return nil
}

// SessionFilePrefix returns the glob-style prefix used to find every
// discovery file belonging to a session, for garbage collection (spec
// §6.5: "all files matching {session_id}_* MUST be removed").
func SessionFilePrefix(sessionID string) string {
	return sessionID + "_"
}
