package tclient

import "errors"

var (
	// ErrNotConnected is returned by SendMsg/Send when no transport is
	// currently open.
	ErrNotConnected = errors.New("tclient: not connected")

	// ErrRequestTimeout is the error delivered to a RespCallback whose
	// matching response never arrived before its per-request timer
	// fired.
	ErrRequestTimeout = errors.New("tclient: request timed out")

	// ErrAlreadyStarted is returned by Start once Disconnect has stopped
	// the AccessCtrl. A second Start on a running AccessCtrl is not
	// rejected.
	ErrAlreadyStarted = errors.New("tclient: access ctrl already started")

	// ErrAuthFailed names an explicit authentication rejection by the
	// peer. AccessCtrl does not return or record it: on rejection it
	// moves to Disconnected and schedules a retry.
	ErrAuthFailed = errors.New("tclient: authentication failed")

	// ErrOffline names a heartbeat round trip silent for longer than the
	// configured offline threshold. AccessCtrl does not return or record
	// it: the offline check moves to Offline and schedules a retry.
	ErrOffline = errors.New("tclient: connection considered offline")
)
