package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

// Counter names registered by the server.
const (
	EnvelopesDropped = "EnvelopesDropped"
	EventsDelivered  = "EventsDelivered"
	DeliveryFailures = "DeliveryFailures"
	RequestsReceived = "RequestsReceived"
	RequestsAccepted = "RequestsAccepted"
	HistoryReplays   = "HistoryReplays"
	SnapshotsSaved   = "SnapshotsSaved"
	SnapshotFailures = "SnapshotFailures"
)

type Provider interface {
	Incr(name string)
	RegisterMetric(name string)
	Run()
}

type Updater struct {
	vars       *expvar.Map
	updateChan chan *metricUpdateReq
}

type metricUpdateReq struct {
	name  string
	value int
}

func (u *Updater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	u.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewUpdater creates the stats updater and mounts its JSON dump on the mux.
func NewUpdater(mux *http.ServeMux) *Updater {
	u := &Updater{
		updateChan: make(chan *metricUpdateReq, 512),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(u.expvarHandler))
	u.vars = expvar.NewMap("estg-sd-stats")
	u.initializeMetrics()

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
		u.RegisterMetric(name)
	}

	return u
}

func (u *Updater) initializeMetrics() {
	startTime := time.Now()
	u.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

func (u *Updater) updateMetrics() {
	for req := range u.updateChan {
		metric := u.vars.Get(req.name)
		if metric == nil {
			panic("metric not found: " + req.name)
		}

		metric.(*expvar.Int).Add(int64(req.value))
	}
}

func (u *Updater) Incr(name string) {
	u.updateChan <- &metricUpdateReq{name: name, value: 1}
}

func (u *Updater) RegisterMetric(name string) {
	u.vars.Set(name, expvar.NewInt(name))
}

func (u *Updater) Run() {
	go u.updateMetrics()
}

func (u *Updater) Stop() {
	close(u.updateChan)
}
