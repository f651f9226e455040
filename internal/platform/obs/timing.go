package obs

import (
	"context"
	"log"
	"time"
)

type ctxKey string

// SessionIDKey tags a context with the navigation session an external call
// belongs to, so adapter timings can be correlated per client.
const SessionIDKey ctxKey = "session_id"

// Time logs the duration and outcome of an operation when the returned
// closure is invoked:
//
//	defer obs.Time(ctx, "osrm.GetRoute")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	sessionID, _ := ctx.Value(SessionIDKey).(string)

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			log.Printf("session=%s op=%s dur=%dms err=%v", sessionID, name, dur.Milliseconds(), *errp)
			return
		}
		log.Printf("session=%s op=%s dur=%dms", sessionID, name, dur.Milliseconds())
	}
}
