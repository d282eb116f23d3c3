package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"netglobe/internal/config"
	"netglobe/internal/logging"
	systemserviceinstall "netglobe/internal/systemServiceInstall"
	"netglobe/internal/web"

	"github.com/dustin/go-humanize"
)

func runDoctor(e *Env) {
	fmt.Println("netglobe Doctor Report")
	fmt.Println("----------------------")
	fmt.Printf("Version           : %s\n", e.Version)
	fmt.Printf("OS                : %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Running as        : %s (uid=%d)\n", os.Getenv("USER"), os.Getuid())

	fmt.Println("\nCapture")
	checkTool("Stream", e.Config.Capture.Stream.Command)
	checkTool("Snapshot", e.Config.Capture.Snapshot.Command)
	fmt.Printf("  Mode            : %s\n", e.Config.Capture.Mode)

	fmt.Println("\nConfig")
	if e.ConfigPath == "" {
		fmt.Println("  Path            : (defaults)")
	} else {
		checkPath(e.ConfigPath)
	}

	fmt.Println("\nDatabase")
	checkPath(e.DBPath())

	fmt.Println("\nGeo cache")
	fmt.Printf("  Backend         : %s\n", e.Config.Geo.CacheBackend)
	if p := e.CachePath(); p != "" && e.Config.Geo.CacheBackend != config.BackendSQLite {
		checkPath(p)
	}

	fmt.Println("\nLogs")
	checkPath(logging.LogDir(e.Config.Log))

	fmt.Println("\nRuntime")
	fmt.Printf("  Service         : %s\n", systemserviceinstall.ServiceStatus())
	checkGeoEndpoint(e.Config.Geo.BaseURL)
	checkAdminEndpoint(e.Config.Admin.Listen)
}

func checkTool(label, name string) {
	p, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("  %-16s: %s not found\n", label, name)
		return
	}
	fmt.Printf("  %-16s: %s\n", label, p)
}

func checkPath(path string) {
	fmt.Printf("  Path            : %s\n", path)

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  Exists          : no (%v)\n", err)
		checkWritable(filepath.Dir(path))
		return
	}

	fmt.Printf("  Exists          : yes\n")
	if info.IsDir() {
		fmt.Printf("  Size            : %s\n", humanize.Bytes(dirSize(path)))
		checkWritable(path)
		return
	}

	fmt.Printf("  Size            : %s\n", humanize.Bytes(uint64(info.Size())))
	fmt.Printf("  Modified        : %s\n", humanize.Time(info.ModTime()))

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		fmt.Printf("  Writable        : no (%v)\n", err)
		return
	}
	f.Close()
	fmt.Printf("  Writable        : yes\n")
}

func checkWritable(dir string) {
	f, err := os.CreateTemp(dir, ".netglobe-doctor-*")
	if err != nil {
		fmt.Printf("  Writable        : no (%v)\n", err)
		return
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	fmt.Printf("  Writable        : yes (%s)\n", dir)
}

func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}

func checkGeoEndpoint(baseURL string) {
	client := &http.Client{Timeout: 3 * time.Second}
	start := time.Now()
	resp, err := client.Head(baseURL)
	if err != nil {
		fmt.Println("  Geo endpoint    : unreachable")
		fmt.Printf("  Error           : %v\n", err)
		return
	}
	resp.Body.Close()
	fmt.Printf("  Geo endpoint    : reachable (%s, %s)\n", resp.Status, time.Since(start).Truncate(time.Millisecond))
}

func checkAdminEndpoint(listen string) {
	fmt.Printf("  Admin path      : %s\n", listen)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var stats map[string]any
	if err := web.NewClient(listen, "").Stats(ctx, &stats); err != nil {
		fmt.Println("  Admin endpoint  : unreachable")
		fmt.Printf("  Error           : %v\n", err)
		return
	}

	fmt.Println("  Admin endpoint  : reachable")
	if p, ok := stats["pipeline"].(map[string]any); ok {
		fmt.Printf("  Capture state   : %v (%v)\n", p["state"], p["mode"])
		if n, ok := p["emitted"].(float64); ok {
			fmt.Printf("  Events emitted  : %s\n", humanize.Comma(int64(n)))
		}
	}
}
