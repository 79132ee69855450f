package usecase

import "errors"

// Stage error taxonomy. Fetch and classification failures are logged and the
// run continues; summarization and translation failures degrade to the
// original text; delivery failures leave queue entries ready for the next
// send. Anything else bubbling out of a store is a storage failure and aborts
// the current run.
var (
	ErrFetch          = errors.New("fetch failed")
	ErrClassification = errors.New("classification failed")
	ErrSummarization  = errors.New("summarization failed")
	ErrTranslation    = errors.New("translation failed")
	ErrDelivery       = errors.New("delivery failed")
)
