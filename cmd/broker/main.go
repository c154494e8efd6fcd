package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gorm.io/gorm"

	"peer-hub/pkg/api"
	"peer-hub/pkg/auth"
	"peer-hub/pkg/broker"
	"peer-hub/pkg/config"
	"peer-hub/pkg/db"
	"peer-hub/pkg/discovery"
	"peer-hub/pkg/protocol"
	"peer-hub/pkg/store"
	"peer-hub/pkg/transport"
	"peer-hub/pkg/version"
)

func main() {
	if err := config.Load(); err != nil {
		log.Printf("load .env failed: %v", err)
	}

	addr := flag.String("addr", config.Env("BROKER_ADDR", ":8080"), "listen address for links and the status API")
	token := flag.String("token", config.Env("AUTH_TOKEN", ""), "status API token (optional)")
	secret := flag.String("secret", config.Env("BROKER_SECRET", ""), "secret peers must present to join (optional)")
	interval := flag.Duration("interval", config.EnvDuration("SCHEDULE_INTERVAL", broker.DefaultInterval), "scheduler period")
	storeType := flag.String("store", config.Env("STORE", "memory"), "store backend: memory|consul (requires build tag consul)")
	consulAddr := flag.String("consul-addr", config.Env("CONSUL_ADDR", "127.0.0.1:8500"), "consul address (when store=consul)")
	authUsers := flag.String("auth-users", config.Env("AUTH_USERS", ""), "credentials handed to peers, user:pass,...")
	useMySQL := flag.Bool("mysql", config.EnvBool("USE_MYSQL", false), "keep credentials in MySQL (MYSQL_* env)")
	mdns := flag.Bool("mdns", config.EnvBool("MDNS", false), "announce the broker over mDNS")
	tlsCert := flag.String("tls-cert", config.Env("TLS_CERT", ""), "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", config.Env("TLS_KEY", ""), "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", config.Env("CLIENT_CA", ""), "require and verify client certs using this CA (optional)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Print(version.Banner("broker"))
		return
	}

	var st store.PeerStore
	switch *storeType {
	case "consul":
		var err error
		if st, err = store.NewConsulStore(*consulAddr); err != nil {
			log.Fatalf("consul store: %v", err)
		}
	case "memory":
		st = store.NewMemoryStore()
	default:
		log.Fatalf("unsupported store type: %s", *storeType)
	}

	users, err := auth.ParseUsers(*authUsers)
	if err != nil {
		log.Fatalf("--auth-users: %v", err)
	}
	var gdb *gorm.DB
	var policy auth.Policy
	if *useMySQL {
		if gdb, err = db.Init(); err != nil {
			log.Fatalf("mysql init failed: %v", err)
		}
		for u, p := range users {
			if err := db.AddCredential(gdb, u, p); err != nil {
				log.Fatalf("seed credential %s: %v", u, err)
			}
		}
		policy, err = db.LoadPolicy(gdb)
	} else {
		policy, err = auth.NewPolicy(users)
	}
	if err != nil {
		log.Fatalf("auth policy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := transport.NewWS(transport.WSConfig{Name: protocol.BrokerName, Secret: *secret})
	b := broker.New(tr, st, broker.Config{Interval: *interval, AuthPolicy: policy})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, st, *token)
	mux.Handle(transport.LinkPath, tr)
	creds := &api.CredentialHandler{DB: gdb, Token: *token, OnChange: b.SetAuthPolicy, Policy: b.AuthPolicy}
	if gdb != nil {
		creds.RegisterRoutes(mux)
	} else {
		mux.HandleFunc("/api/v1/credentials/verify", creds.Verify)
	}

	if *mdns {
		if err := discovery.Announce(ctx, "peer-hub-broker", portOf(*addr)); err != nil {
			log.Printf("mdns announce failed: %v", err)
		}
	}

	go b.Run(ctx)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = tr.Close()
	}()

	log.Printf("%s listening on %s interval=%s auth=%v", version.Banner("broker"), *addr, *interval, policy.Enabled())
	if *tlsCert != "" && *tlsKey != "" {
		if *clientCA != "" {
			cfg, errTLS := api.ServerTLSConfig(*tlsCert, *tlsKey, *clientCA)
			if errTLS != nil {
				log.Fatalf("failed to build TLS config: %v", errTLS)
			}
			srv.TLSConfig = cfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("broker stopped")
}

func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
