package stats

import (
	"expvar"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expvar names are process-global, so the updater is built once and shared by
// the subtests.
func TestUpdater(t *testing.T) {
	mux := http.NewServeMux()
	u := NewUpdater(mux)
	assert.NotNil(t, u, "expected Updater to be non-nil")
	assert.NotNil(t, u.updateChan, "expected updateChan to be initialized")

	t.Run("registers debug handler", func(t *testing.T) {
		handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
		assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
		assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
	})

	t.Run("registers counters", func(t *testing.T) {
		for _, name := range []string{
			EnvelopesDropped,
			EventsDelivered,
			DeliveryFailures,
			RequestsReceived,
			RequestsAccepted,
			HistoryReplays,
			SnapshotsSaved,
			SnapshotFailures,
		} {
			assert.NotNilf(t, u.vars.Get(name), "expected counter %q to be registered", name)
		}
	})

	t.Run("increments counters", func(t *testing.T) {
		u.Run()
		defer u.Stop()

		u.Incr(EventsDelivered)
		u.Incr(EventsDelivered)

		assert.Eventually(t, func() bool {
			return u.vars.Get(EventsDelivered).(*expvar.Int).Value() == 2
		}, time.Second, 5*time.Millisecond, "expected the counter to reach the incremented value")
	})
}
