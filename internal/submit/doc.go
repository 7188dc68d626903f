// Package submit routes work to the remote service and returns a pollable job
// id.
//
// Files go through the signed-upload path and degrade to a single inline
// request when the upload gateway signals fallback; inline results are parked
// in a Registry under a synthesized id so the monitor can report them complete
// without polling. Links are posted to the route chosen by tier.
package submit
