package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfarnham/klinedash/internal/obd"
	"github.com/kfarnham/klinedash/internal/server"
	"github.com/kfarnham/klinedash/web"
)

var (
	configPath string
	listenAddr string
	demoMode   bool
	portPath   string
)

var rootCmd = &cobra.Command{
	Use:   "klinedash",
	Short: "ISO 9141-2 K-Line OBD-II dashboard",
	Long: `klinedash talks ISO 9141-2 over a K-Line serial adapter, polls the
vehicle for live engine data (RPM, speed, load, coolant temperature)
and serves a browser dashboard over WebSocket.

Connection modes:
  Hardware: serve --port /dev/ttyUSB0
  Demo:     serve --demo (simulated engine data, no adapter needed)`,
	Version: "1.0.0",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server and poll loop",
	RunE:  runServe,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Perform one handshake and print the vehicle's key bytes and supported PIDs",
	RunE:  runProbe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/klinedash/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&portPath, "port", "p", "", "Override serial port device")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Override listen address (e.g. :8080)")
	serveCmd.Flags().BoolVar(&demoMode, "demo", false, "Run with simulated engine data")

	rootCmd.AddCommand(serveCmd, probeCmd)
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("[main] klinedash starting")

	cfg := server.LoadConfig(configPath)

	if demoMode {
		cfg.OBD.Type = "demo"
	}
	if portPath != "" {
		cfg.OBD.PortPath = portPath
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	var prov obd.Provider
	switch cfg.OBD.Type {
	case "iso9141":
		prov = obd.NewISO9141(cfg.OBD.Config)
	default:
		prov = obd.NewDemo()
	}
	log.Printf("[main] provider: %s", prov.Name())

	// Try connecting with exponential backoff (non-blocking — dashboard starts regardless)
	go connectWithRetry(ctx, prov, 10)

	// Start server — works immediately even if the vehicle is still connecting
	srv := server.New(cfg, prov, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
	return prov.Close()
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg := server.LoadConfig(configPath)
	if portPath != "" {
		cfg.OBD.PortPath = portPath
	}

	fmt.Printf("Probing %s (slow init takes a few seconds)...\n", cfg.OBD.PortPath)
	client := obd.NewISO9141(cfg.OBD.Config)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	defer client.Close()

	kb := client.KeyBytes()
	fmt.Printf("Handshake OK, key bytes %02X %02X\n", kb[0], kb[1])

	mask := client.SupportedPIDs()
	fmt.Printf("Supported PIDs 01-20: %s\n", mask)
	for p := byte(1); p <= 32; p++ {
		if mask.Supported(p) {
			fmt.Printf("  01 %02X\n", p)
		}
	}
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, prov obd.Provider, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := prov.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Printf("[obd] connect attempt %d/%d failed: %v (retry in %v)",
					attempt, maxAttempts, err, delay)
			} else {
				log.Printf("[obd] connect attempt %d failed: %v (retry in %v)",
					attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		log.Printf("[obd] connected: %s", prov.Name())
		return
	}
}
