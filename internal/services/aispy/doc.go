// Package aispy is the HTTP client for the remote voice analysis service.
//
// Client covers credential issuance, signed upload targets, job submission
// (object notification, link routes, inline multipart analysis), status
// polling, and chat. It owns the retry, timeout, and 401 re-authentication
// policy so callers only see classified errors from internal/services.
package aispy
