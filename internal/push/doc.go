// Package push runs the optional local HTTP receiver for out-of-band job
// notifications.
//
// A notification body is a status document in the same shape the status
// endpoint returns, plus the job id. Completed and failed notifications are
// handed to the monitor; anything for an unknown or finished job is
// acknowledged and dropped, so redelivery is harmless.
package push
