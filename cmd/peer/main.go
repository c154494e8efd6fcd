package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"peer-hub/pkg/api"
	"peer-hub/pkg/auth"
	"peer-hub/pkg/config"
	"peer-hub/pkg/discovery"
	"peer-hub/pkg/journal"
	"peer-hub/pkg/netinfo"
	"peer-hub/pkg/peer"
	"peer-hub/pkg/protocol"
	"peer-hub/pkg/transport"
	"peer-hub/pkg/version"
)

func main() {
	if err := config.Load(); err != nil {
		log.Printf("load .env failed: %v", err)
	}

	name := flag.String("name", config.Env("PEER_NAME", ""), "peer name (random UUID when empty)")
	brokerHost := flag.String("broker", config.Env("BROKER_HOST", "127.0.0.1"), "broker host, or mdns to find one on the LAN")
	brokerPort := flag.Int("broker-port", config.EnvInt("BROKER_PORT", 8080), "broker port")
	brokerSecret := flag.String("broker-secret", config.Env("BROKER_SECRET", ""), "broker join secret")
	brokerTLS := flag.Bool("broker-tls", config.EnvBool("BROKER_TLS", false), "dial the broker over wss://")
	caFile := flag.String("ca", config.Env("CA_FILE", ""), "CA file for broker TLS (optional)")
	clientCert := flag.String("cert", "", "client TLS certificate (for mTLS)")
	clientKey := flag.String("key", "", "client TLS key (for mTLS)")
	insecure := flag.Bool("insecure", false, "skip TLS verify for the broker (not recommended)")
	listen := flag.String("listen", config.Env("LISTEN_ADDR", ":7000"), "listen address for direct links")
	port := flag.Int("port", config.EnvInt("PEER_PORT", 7000), "port other peers dial (announced)")
	localIP := flag.String("local-ip", config.Env("LOCAL_IP", "auto"), "announced LAN address (auto = first active IPv4)")
	publicIP := flag.String("public-ip", config.Env("PUBLIC_IP", ""), "announced public address (auto = STUN, empty = not reachable)")
	stunServer := flag.String("stun", config.Env("STUN_SERVER", netinfo.DefaultSTUNServer), "STUN server for --public-ip auto")
	lanID := flag.String("lan-id", config.Env("LAN_ID", ""), "LAN group tag shared with peers on the same network (default: own name)")
	whiteList := flag.String("white-list", config.Env("WHITE_LIST", ""), "comma separated peers allowed to pair (empty = all)")
	blackList := flag.String("black-list", config.Env("BLACK_LIST", ""), "comma separated peers never paired")
	journalPath := flag.String("journal", config.Env("JOURNAL_PATH", ""), "SQLite file recording link events (optional)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Print(version.Banner("peer"))
		return
	}

	if *name == "" {
		*name = uuid.NewString()
	}
	if *lanID == "" {
		// a unique tag keeps the peer out of every LAN group
		*lanID = *name
	}
	if *localIP == "auto" {
		ip, err := netinfo.LocalIP()
		if err != nil {
			log.Fatalf("detect local ip: %v", err)
		}
		*localIP = ip
	}
	pub, err := netinfo.ResolvePublic(*publicIP, *localIP, *stunServer, 3*time.Second)
	if err != nil {
		log.Printf("public ip detection failed, announcing none: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *brokerHost == "mdns" {
		found, err := discovery.Find(ctx, 3*time.Second)
		if err != nil {
			log.Fatalf("broker discovery: %v", err)
		}
		log.Printf("found broker %s at %s:%d", found.Instance, found.IP, found.Port)
		*brokerHost, *brokerPort = found.IP, found.Port
	}

	var jr *journal.Journal
	if *journalPath != "" {
		if jr, err = journal.Open(*journalPath); err != nil {
			log.Fatalf("journal: %v", err)
		}
		defer jr.Close()
	}

	wsCfg := transport.WSConfig{Name: *name, Persistent: []string{protocol.BrokerName}}
	if *brokerTLS {
		tlsCfg, err := api.ClientTLSConfig(*caFile, *clientCert, *clientKey, *insecure)
		if err != nil {
			log.Fatalf("tls config: %v", err)
		}
		wsCfg.Secure = []string{protocol.BrokerName}
		wsCfg.TLSConfig = tlsCfg
	}

	// dialers must present a token signed with our session secret
	secret := peer.NewSecret()
	wsCfg.Secret = secret
	tr := transport.NewWS(wsCfg)
	defer tr.Close()
	p := peer.New(tr, peer.Config{
		Name:          *name,
		LocalIP:       *localIP,
		PublicIP:      pub,
		LanID:         *lanID,
		SessionSecret: secret,
		Port:          *port,
		WhiteList:     config.SplitList(*whiteList),
		BlackList:     config.SplitList(*blackList),
		Journal:       jr,
		OnAuthPolicy: func(ap auth.Policy) {
			log.Printf("auth policy from broker: users=%d", len(ap))
		},
	})
	info := p.Info()
	if err := tr.Listen(*listen); err != nil {
		log.Fatalf("listen: %v", err)
	}

	go p.Run(ctx)
	if err := p.Join(*brokerHost, *brokerPort, *brokerSecret); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("%s name=%s local=%s public=%s port=%d lan=%s", version.Banner("peer"), info.Name, info.LocalIP, info.PublicIP, info.Port, info.LanID)

	go console(ctx, p)
	for {
		select {
		case <-ctx.Done():
			log.Printf("peer stopped")
			return
		case m, ok := <-p.Inbound():
			if !ok {
				log.Printf("peer stopped")
				return
			}
			via := "direct"
			if m.Relayed {
				via = "relay"
			}
			fmt.Printf("[%s via %s] %s\n", m.From, via, string(m.Payload))
		}
	}
}

func console(ctx context.Context, p *peer.Peer) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "/links" {
			for n, k := range p.Links() {
				fmt.Printf("%s %s\n", n, k)
			}
			continue
		}
		to, text, ok := strings.Cut(line, " ")
		if !ok {
			fmt.Println("usage: <peer> <text> | /links")
			continue
		}
		if err := p.Send(to, text); err != nil {
			fmt.Printf("send to %s failed: %v\n", to, err)
		}
	}
}
