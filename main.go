/*
 * main.go
 *
 * Process composition: a pod watcher feeding an image-keyed store, an SBOM
 * enrichment worker mirroring it into a second store, and an HTTP/WebSocket
 * server exposing the enriched store. All three run under a single
 * errgroup; any one exiting tears the rest down.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ctron/bommer/api"
	"github.com/ctron/bommer/internal/config"
	"github.com/ctron/bommer/internal/logging"
	"github.com/ctron/bommer/sbom"
	"github.com/ctron/bommer/store"
	"github.com/ctron/bommer/workload"
)

func main() {
	configOverlay := flag.String("config", "", "optional YAML file overlaying environment-derived settings")
	flag.Parse()

	logger := logging.New("main")

	cfg := config.FromEnv()
	if *configOverlay != "" {
		merged, err := config.LoadOverlay(cfg, *configOverlay)
		if err != nil {
			logger.Errorf("loading config overlay %s: %v", *configOverlay, err)
			os.Exit(1)
		}
		cfg = merged
	}

	if err := run(cfg, logger); err != nil {
		logger.Errorf("exiting: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clientset, err := buildClientset()
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	images := store.New[string, workload.PodRef, struct{}](0, nil)
	enriched := store.New[string, workload.PodRef, sbom.State](0, nil)

	watcher := workload.NewWatcher(clientset, cfg.Namespace, logging.New("watcher"))
	adapter := workload.NewAdapter(images, logging.New("adapter"))
	sbomClient := sbom.NewClient(cfg.BombasticURL, config.SbomFetchTimeout)
	worker := sbom.NewWorker(images, enriched, sbomClient, logging.New("sbom"))

	server := api.NewServer(enriched, logging.New("api"))
	mux := http.NewServeMux()
	server.Register(mux)
	httpServer := &http.Server{Addr: cfg.BindAddr, Handler: mux}

	group, groupCtx := errgroup.WithContext(ctx)

	podEvents := make(chan workload.Event)
	group.Go(func() error {
		defer close(podEvents)
		return watcher.Run(groupCtx, podEvents)
	})
	group.Go(func() error {
		return adapter.Run(groupCtx, podEvents)
	})
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Infof("listening on %s", cfg.BindAddr)
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		case <-groupCtx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.HTTPShutdownTimeout)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	})

	err = group.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// buildClientset loads a kubernetes client from the default kubeconfig
// loading rules (local development), falling back to in-cluster config when
// no kubeconfig is found.
func buildClientset() (kubernetes.Interface, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	restConfig.Timeout = 30 * time.Second

	return kubernetes.NewForConfig(restConfig)
}
