package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-messenger/pkg/bridge"
	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/storage"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport/p2p"
)

var log = logging.Logger("zentalk")

const heartbeatInterval = 5 * time.Minute

func runCmd() *cobra.Command {
	var (
		name      string
		port      int
		listen    []string
		bootstrap []string
		noMDNS    bool
		noDHT     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the messenger node and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("name") {
				cfg.Contact.Name = name
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port = port
			}
			if cmd.Flags().Changed("listen") {
				cfg.Transport.ListenAddrs = listen
			}
			if cmd.Flags().Changed("bootstrap") {
				cfg.Transport.BootstrapPeers = bootstrap
			}
			if noMDNS {
				cfg.Transport.EnableMDNS = false
			}
			if noDHT {
				cfg.Transport.EnableDHT = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "contact name announced to peers")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP API port")
	cmd.Flags().StringSliceVar(&listen, "listen", nil, "libp2p listen multiaddrs")
	cmd.Flags().StringSliceVar(&bootstrap, "bootstrap", nil, "bootstrap peer multiaddrs")
	cmd.Flags().BoolVar(&noMDNS, "no-mdns", false, "disable LAN discovery")
	cmd.Flags().BoolVar(&noDHT, "no-dht", false, "disable DHT discovery")
	return cmd
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	contactID, created, err := identity.LoadOrCreateFile(cfg.IdentityPath(), messenger.ContactDestinationName)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	if created {
		log.Infof("🔑 new identity saved to %s", cfg.IdentityPath())
	}

	// the transport key is ephemeral; peers know this node by its contact address only
	transportID, err := identity.New()
	if err != nil {
		return err
	}

	tr, err := p2p.New(ctx, transportID, cfg.Transport)
	if err != nil {
		return err
	}
	defer tr.Close()

	secret, err := contactID.Hex()
	if err != nil {
		return err
	}
	db, err := storage.NewMessageDB(cfg.DBPath(), []byte(secret))
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := bridge.New(db, cfg.FilesDir())
	if err != nil {
		return err
	}
	defer b.Close()

	contact := protocol.ContactData{Name: cfg.Contact.Name}
	m, err := messenger.New(ctx, tr, contactID, contact, b, cfg.Messenger)
	if err != nil {
		return err
	}
	defer m.Close()
	b.Attach(m)

	info := func() bridge.NodeInfo {
		return bridge.NodeInfo{
			Address: m.Address().String(),
			Name:    contact.Name,
			MDU:     m.MDU(),
			PeerID:  tr.ID().String(),
			Addrs:   tr.Addrs(),
			Peers:   tr.PeerCount(),
		}
	}

	printStatus(info())
	go heartbeatLoop(ctx, info, db)

	server := bridge.NewServer(b, cfg.API, info)
	if err := server.Start(ctx); err != nil {
		return err
	}

	log.Infof("shutting down gracefully...")
	return nil
}

func heartbeatLoop(ctx context.Context, info func() bridge.NodeInfo, db *storage.MessageDB) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		contacts, err := db.GetAllContacts()
		if err != nil {
			log.Warnf("⚠️  heartbeat: %v", err)
			continue
		}
		log.Infof("💓 heartbeat: %d peers connected, %d contacts known", info().Peers, len(contacts))
	}
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║            Zentalk Mesh Messenger v1.0            ║")
	fmt.Println("║      Serverless chat over a peer to peer mesh     ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}

func printStatus(info bridge.NodeInfo) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("🚀 Messenger Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("   Contact: %s\n", info.Name)
	fmt.Printf("   Address: %s\n", info.Address)
	fmt.Printf("   Peer ID: %s\n", info.PeerID)
	for _, addr := range info.Addrs {
		fmt.Printf("   Listening: %s\n", addr)
	}
	fmt.Printf("   API: http://localhost:%d/api/v1\n", cfg.API.Port)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()
}
