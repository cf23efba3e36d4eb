package ugphone

// Kind classifies the result of one purchase attempt. All downstream logic
// (scheduler, notifiers, event log) operates on this closed set, never on raw
// API responses.
type Kind string

const (
	// KindSuccess means the order went through; the trial is one-shot, so the
	// account is done.
	KindSuccess Kind = "success"
	// KindAlreadyOwned means the account has already consumed the trial offer.
	KindAlreadyOwned Kind = "already_owned"
	// KindNotYetAvailable means the package is out of stock or the drop has
	// not started.
	KindNotYetAvailable Kind = "not_yet_available"
	// KindAuthError means the credential was rejected; retrying cannot help
	// without a fresh token.
	KindAuthError Kind = "auth_error"
	// KindServiceError covers timeouts, 5xx responses, and anything the
	// classifier cannot confidently place elsewhere.
	KindServiceError Kind = "service_error"
)

// Outcome is the classified result of a single purchase attempt.
type Outcome struct {
	Kind    Kind
	Detail  string
	OrderID string
}
