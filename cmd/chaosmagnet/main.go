package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/JupitersGhost/ChaosMagnet/internal/engine"
	"github.com/JupitersGhost/ChaosMagnet/internal/harvest"
	"github.com/JupitersGhost/ChaosMagnet/internal/server"
	"github.com/JupitersGhost/ChaosMagnet/internal/storage"
	"github.com/JupitersGhost/ChaosMagnet/internal/uplink"
	"github.com/JupitersGhost/ChaosMagnet/internal/vault"
)

func main() {
	port := os.Getenv("CHAOSMAGNET_PORT")
	if port == "" {
		port = "8080"
	}

	dataDir := os.Getenv("CHAOSMAGNET_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	nodeID := os.Getenv("CHAOSMAGNET_NODE_ID")
	if nodeID == "" {
		nodeID = "chaos_magnet"
	}

	// Empty passphrase keeps the signing identity ephemeral.
	passphrase := os.Getenv("CHAOSMAGNET_VAULT_PASSPHRASE")
	uplinkURL := os.Getenv("CHAOSMAGNET_UPLINK_URL")

	policy := vault.DefaultPolicy
	if v := os.Getenv("CHAOSMAGNET_MINT_CADENCE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			log.Fatalf("Invalid CHAOSMAGNET_MINT_CADENCE: %q", v)
		}
		policy.Cadence = n
	}
	if v := os.Getenv("CHAOSMAGNET_MINT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Fatalf("Invalid CHAOSMAGNET_MINT_THRESHOLD: %q", v)
		}
		policy.Threshold = f
	}

	db, err := storage.NewDB(filepath.Join(dataDir, "chaosmagnet.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	identity, err := vault.LoadOrGenerateIdentity(filepath.Join(dataDir, "identity.key"), passphrase)
	if err != nil {
		log.Fatalf("Failed to load identity: %v", err)
	}
	minter := vault.NewMinter(identity, filepath.Join(dataDir, "keys"), policy, db)

	forwarder := uplink.New(nodeID, uplinkURL)
	eng := engine.New(engine.Config{
		Minter:    minter,
		Store:     db,
		Forwarder: forwarder,
	})

	// All sources start disabled; CHAOSMAGNET_SOURCES pre-enables a
	// comma-separated list (e.g. "TRNG,CLOCK") for headless deployments.
	harvesters := harvest.DefaultHarvesters()
	for _, h := range harvesters {
		eng.Flags.Set(h.Tag, false)
	}
	for _, tag := range strings.Split(os.Getenv("CHAOSMAGNET_SOURCES"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			eng.Flags.Set(tag, true)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go eng.Run(ctx)
	go forwarder.Run(ctx)
	harvest.StartAll(ctx, harvesters, eng.Flags, eng.Submit)

	srv := server.New(eng, forwarder, db)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	fmt.Printf("ChaosMagnet running on http://localhost:%s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, srv))
}
