package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deemkeen/fedifeed/activitypub"
	"github.com/deemkeen/fedifeed/db"
	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/feed"
	"github.com/deemkeen/fedifeed/util"
	"github.com/deemkeen/fedifeed/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	keypair, err := util.LoadOrCreateKeypair(conf.Actor.PublicKeyFile, conf.Actor.PrivateKeyFile)
	if err != nil {
		log.Fatalln(err)
	}

	self := domain.NewLocalActor(conf, keypair)

	database, err := db.Open(conf.Conf.Db)
	if err != nil {
		log.Fatalln(err)
	}

	log.Println("Checking database schema...")
	if err := database.EnsureSchema(); err != nil {
		var migrationErr *db.MigrationError
		if errors.Is(err, db.ErrIncompatibleSchema) || errors.As(err, &migrationErr) {
			log.Fatalf("Cannot use database %s: %v", conf.Conf.Db, err)
		}
		log.Fatalln(err)
	}

	state := activitypub.NewFollowingState()

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	scheduler := feed.NewScheduler(conf, self, database)
	go scheduler.Run(schedulerCtx)

	server := web.NewServer(conf, self, database, state)
	addr := fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	startServing(httpServer, self, state, stopScheduler)
}

func startServing(s *http.Server, self *domain.LocalActor, state *activitypub.FollowingState, stopScheduler context.CancelFunc) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("Starting %s on %s", util.GetNameAndVersion(), s.Addr)
	log.Printf("Profile discoverable at @%s", self.Handle())

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping server")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer func() { cancel() }()
	if err := s.Shutdown(ctx); err != nil {
		log.Fatalln(err)
	}

	// Withdraw our follow requests last, after the listener has closed.
	state.Shutdown(self)
}
