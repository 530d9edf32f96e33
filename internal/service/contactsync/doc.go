// Package contactsync implements the daily export of venue contacts into
// MailerLite subscriber groups.
//
// A run is four sequential stages: select eligible contacts (show already
// happened, not yet exported), transform them into upload items grouped by
// venue, upload in batches of 50, then reconcile the outcome back into the
// contact store (mark successes exported, quarantine failures).
//
// The service depends on the Repository interface defined in repository.go
// and on a Batcher for MailerLite. It never imports database drivers
// directly.
package contactsync
