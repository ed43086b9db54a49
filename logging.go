package cubez

import "go.uber.org/zap"

// UniverseOption configures a Universe at Init time, following the
// functional-options shape common across the retrieval pack's server
// runtimes rather than a mutable Attr struct, since Universe itself is a
// singleton value, not a create/destroy handle like Component/Entity/
// System/Event.
type UniverseOption func(*Universe)

// WithLogger overrides the universe's zap logger. Init defaults to
// zap.NewNop() when no logger is supplied, so the runtime never needs a nil
// check before logging.
func WithLogger(log *zap.Logger) UniverseOption {
	return func(u *Universe) {
		u.log = log
	}
}
