// Package analysis defines the data model shared by every stage of the job
// lifecycle: subscription tiers, job kinds and states, and the immutable
// analysis result decoded from the remote service.
//
// Values in this package carry no behaviour beyond parsing and normalization so
// the submitter, monitor, cache, and presentation layers can exchange them
// freely.
package analysis
