package middleware

import "github.com/gin-gonic/gin"

type CleanupTrigger interface {
	MaybeRun() bool
}

// OpportunisticCleanup lets ambient traffic kick off storage hygiene. The
// trigger decides whether anything actually runs, the request never waits.
func OpportunisticCleanup(t CleanupTrigger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t.MaybeRun()
		c.Next()
	}
}
