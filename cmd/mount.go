// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/HealthSamurai/fhir-fuse/cache"
	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/fs"
	"github.com/HealthSamurai/fhir-fuse/internal/logger"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
)

// runMount builds every component named in §4 and mounts the resulting
// fuse.Server at mountPoint, blocking until it is unmounted.
func runMount(ctx context.Context, mountPoint, baseURL string, cfg *config) error {
	if err := initLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if !cfg.Foreground {
		return daemonizeAndReexec(mountPoint, baseURL)
	}

	clock := timeutil.RealClock()
	catalog := cache.NewCatalog()

	var client *fhir.Client
	if baseURL != offlineBaseURL {
		client = fhir.NewClient(baseURL)
		client.HTTPClient.Timeout = cfg.HTTPTimeout
		if cfg.RateLimit > 0 {
			client.SetRateLimit(cfg.RateLimit, int(cfg.RateLimit))
		}
		client.MaxPages = cfg.MaxListPages

		capStmt, err := client.Capability(ctx)
		if err != nil {
			daemonize.SignalOutcome(err)
			return &capabilityUnreachableError{cause: err}
		}
		catalog.Set(capStmt.ResourceTypes(), opsByType(capStmt))
	} else {
		client = fhir.NewClient("http://127.0.0.1:0")
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())
	serverCfg := fs.Config{
		Client:     client,
		Clock:      clock,
		Resources:  cache.NewResourceCache(clock, cfg.TTLResource, cfg.TTLResource),
		History:    cache.NewHistoryCache(),
		Searches:   cache.NewSearchCache(),
		Operations: cache.NewOperationRegistry(),
		Catalog:    catalog,
		Uid:        uid,
		Gid:        gid,
	}
	server := fs.New(serverCfg)

	mountCfg := &fuse.MountConfig{
		FSName:     "fhir-fuse",
		Subtype:    "fhirfuse",
		VolumeName: "fhir-fuse",
	}

	logger.Infof("mounting %s at %s", baseURL, mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		daemonize.SignalOutcome(err)
		return fmt.Errorf("mount: %w", err)
	}

	if err := daemonize.SignalOutcome(nil); err != nil {
		logger.Warnf("signaling mount outcome to parent: %v", err)
	}

	if err := mfs.Join(ctx); err != nil {
		return fmt.Errorf("waiting for unmount: %w", err)
	}
	return nil
}

// opsByType adapts a capability statement to the per-type operation
// listing readdir uses to synthesize "$op" pseudo-directories (§4.2, §4.7).
func opsByType(capStmt *fhir.CapabilityStatement) map[string][]string {
	out := make(map[string][]string)
	for _, t := range capStmt.ResourceTypes() {
		if ops := capStmt.OperationsForType(t); len(ops) > 0 {
			out[t] = ops
		}
	}
	return out
}

// serveMetrics runs the Prometheus scrape endpoint for the mount's
// lifetime (§6 "--metrics-addr"). Errors are logged, not fatal: metrics are
// an observability aid, not a correctness requirement.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server: %v", err)
	}
}

// daemonizeAndReexec re-invokes the current executable with --foreground,
// waiting for it to signal a successful mount before returning (§6
// "--foreground").
func daemonizeAndReexec(mountPoint, baseURL string) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)
	env := []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Fprintf(os.Stdout, "File system has been successfully mounted at %s.\n", mountPoint)
	return nil
}
