package events

import "go.uber.org/fx"

// Module provides the transactional outbox.
var Module = fx.Module("events.outbox",
	fx.Provide(NewOutbox),
)
