package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/handlocator/internal/capture"
	"github.com/ayusman/handlocator/internal/config"
	"github.com/ayusman/handlocator/internal/metrics"
	"github.com/ayusman/handlocator/internal/server"
	"github.com/ayusman/handlocator/internal/tracker"
	"github.com/ayusman/handlocator/internal/tray"
)

// traySyncInterval is how often the tray menu follows tracker state.
const traySyncInterval = 500 * time.Millisecond

func main() {
	fmt.Println("Hand Locator - skin-color hand tracking")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	m := metrics.New()

	tr, err := tracker.New(tracker.Config{
		Camera:  capture.NewCamera(cfg.Capture),
		Locator: cfg.Locator,
		Metrics: m,
	})
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}
	defer tr.Close()

	if err := tr.Start(); err != nil {
		log.Fatalf("Failed to start tracking from %q: %v", cfg.Capture.Source, err)
	}

	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Tracker:   tr,
		Metrics:   m,
	})

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Starting server on %s\n", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe(cfg.HTTPAddr)
	}()

	if cfg.Tray {
		// systray must own the main goroutine
		runTray(tr, viewerURL(cfg.HTTPAddr), errCh)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Printf("Server failed: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	}
}

// runTray wires the tray menu to the tracker and blocks until Quit.
func runTray(tr *tracker.Tracker, url string, errCh <-chan error) {
	t := tray.New()
	t.OnToggle(tr.SetEnabled)
	t.OnMaskView(tr.SetMaskView)
	t.OnViewer(func() {
		if err := openBrowser(url); err != nil {
			log.Printf("Failed to open viewer: %v", err)
		}
	})

	positions, cancel := tr.Subscribe()
	defer cancel()
	go func() {
		for pos := range positions {
			t.SetPosition(pos.Found, pos.World.X, pos.World.Y)
		}
	}()

	// The HTTP API can change tracking state too; keep the menu in step.
	stopSync := make(chan struct{})
	defer close(stopSync)
	go t.Follow(stopSync, traySyncInterval, func() (bool, bool) {
		return tr.IsEnabled(), tr.MaskView()
	})

	go func() {
		if err := <-errCh; err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	t.Run()
}

func viewerURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.handlocator/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".handlocator", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
