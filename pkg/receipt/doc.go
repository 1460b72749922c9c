// Package receipt validates Apple in-app-purchase receipts against the
// verifyReceipt endpoint and normalizes the result into a provider-agnostic
// subscription.ProviderEvent.
//
// Three outcome classes exist: environment mismatches (a sandbox receipt sent
// to production or vice versa) are resubmitted once to the other endpoint;
// transient failures surface as a retryable *ValidationError; everything else
// is terminal and becomes a validated or failed ProviderEvent. The
// RetryingValidator wraps the base validator with capped exponential backoff
// for the transient class.
package receipt
