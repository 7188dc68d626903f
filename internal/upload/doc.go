// Package upload validates local audio and moves it to the remote side through
// short-lived signed targets.
//
// Gateway signals ErrFallbackRequired for every failure so the submitter can
// degrade to inline submission instead of failing the job.
package upload
