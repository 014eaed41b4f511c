package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	_ "github.com/lib/pq"

	"github.com/joaopsoliveira03-school/estg-sd/internal/approval"
	"github.com/joaopsoliveira03-school/estg-sd/internal/config"
	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
	"github.com/joaopsoliveira03-school/estg-sd/internal/reporter"
	"github.com/joaopsoliveira03-school/estg-sd/internal/snapshot"
	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/transport"
)

var (
	directAddr    string
	userPort      int
	multicastPort int
	broadcastAddr string
	debugAddr     string
	backend       string
	dataDir       string
	dsn           string
	redisAddr     string
)

func main() {
	flag.StringVar(&directAddr, "addr", ":9000", "direct listen address")
	flag.IntVar(&userPort, "user-port", 9001, "client-side port for outbound pushes and broadcast datagrams")
	flag.IntVar(&multicastPort, "multicast-port", 9002, "multicast group port")
	flag.StringVar(&broadcastAddr, "broadcast-addr", "192.168.5.255", "broadcast address")
	flag.StringVar(&debugAddr, "debug-addr", "localhost:8000", "debug/stats HTTP address")
	flag.StringVar(&backend, "snapshot-backend", config.BackendFile, "snapshot backend: file, postgres or redis")
	flag.StringVar(&dataDir, "data-dir", "./data", "snapshot directory for the file backend")
	flag.StringVar(&dsn, "dsn", "", "database connection string for the postgres backend")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for the redis backend")
	flag.Parse()

	logger := log.New(os.Stderr, "[estg-sd] ", log.LstdFlags)

	cfg, err := config.NewConfig(directAddr, userPort, multicastPort, broadcastAddr, debugAddr, backend, dataDir, dsn, redisAddr)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	backendStore, err := newSnapshotStore(cfg)
	if err != nil {
		logger.Fatal("snapshot backend: ", err)
	}
	defer func() {
		if err := backendStore.Close(); err != nil {
			logger.Println("snapshot backend close:", err)
		}
	}()

	mux := http.NewServeMux()
	statsUpdater := stats.NewUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	st := store.NewStore(logger)

	pusher := transport.NewNetPusher(logger, cfg.UserPort, cfg.MulticastPort, cfg.BroadcastAddr, cfg.AskTimeout)
	approvals := approval.NewRunner(logger, st, pusher, statsUpdater)
	sessions := protocol.NewSessionHandler(logger, st, pusher, statsUpdater, cfg.HistoryDebounce)
	events := protocol.NewEventEngine(logger, st, statsUpdater, approvals)

	dispatcher := protocol.NewDispatcher(logger, st, sessions, events)
	multicast := transport.NewMulticastListener(logger, cfg.MulticastPort, dispatcher)
	dispatcher.SetGroupJoiner(multicast)
	direct := transport.NewDirectListener(logger, cfg.DirectAddr, dispatcher)
	broadcast := transport.NewBroadcastListener(logger, cfg.UserPort, dispatcher)

	persistence := reporter.NewPersistenceReporter(logger, st, backendStore, statsUpdater, cfg.ReportInterval)
	persistence.Restore()

	// Binding a transport is the only fatal startup error; attempt a final
	// snapshot before giving up.
	if err := direct.Listen(); err != nil {
		saveAndExit(logger, persistence, err)
	}
	if err := broadcast.Listen(); err != nil {
		saveAndExit(logger, persistence, err)
	}

	// Re-join persisted groups so their datagram legs come back up.
	for _, group := range st.Groups() {
		if err := multicast.Join(group); err != nil {
			logger.Printf("rejoin group %q: %v", group, err)
		}
	}

	sweeper := reporter.NewSweeper(logger, st, pusher, statsUpdater, cfg.SweepInterval)
	presence := reporter.NewPresenceReporter(logger, st, pusher, cfg.ReportInterval)
	requestStats := reporter.NewRequestStatsReporter(logger, st, pusher, cfg.ReportInterval)

	go direct.Serve()
	go broadcast.Serve()
	go sweeper.Run()
	go presence.Run()
	go requestStats.Run()
	go persistence.Run()

	debugSrv := &http.Server{
		Addr:    cfg.DebugAddr,
		Handler: handlers.CombinedLoggingHandler(os.Stderr, mux),
	}
	go func() {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Println("debug server:", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Printf("received signal: %s", sig)

	direct.Stop()
	broadcast.Stop()
	multicast.Stop()
	sweeper.Stop()
	presence.Stop()
	requestStats.Stop()
	persistence.Stop()
	debugSrv.Close()

	if err := persistence.Save(); err != nil {
		logger.Println("final snapshot:", err)
	}

	logger.Println("shutdown complete")
}

func newSnapshotStore(cfg *config.Config) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case config.BackendPostgres:
		return snapshot.NewPgStore(cfg.DatabaseDSN)
	case config.BackendRedis:
		return snapshot.NewRedisStore(cfg.RedisAddr)
	default:
		return snapshot.NewFileStore(cfg.DataDir)
	}
}

func saveAndExit(logger *log.Logger, persistence *reporter.PersistenceReporter, cause error) {
	if err := persistence.Save(); err != nil {
		logger.Println("final snapshot:", err)
	}
	logger.Fatal(cause)
}
