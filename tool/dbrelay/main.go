/*
 * DBRelay
 * Copyright (C) 2026  DBRelay Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Command dbrelay runs one or more MySQL connection routes from a YAML
// configuration file.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/ghodss/yaml"
	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dbrelay/dbrelay"
	"github.com/dbrelay/dbrelay/lib/routing"
)

// fileConfig is the top level of the configuration file.
type fileConfig struct {
	// Routes lists the configured routes, one router per entry.
	Routes []*routing.Config `json:"routes"`
}

func main() {
	app := kingpin.New("dbrelay", "Protocol-aware TCP reverse proxy for MySQL.")
	configPath := app.Flag("config", "Path to the YAML configuration file.").Short('c').Required().String()
	metricsAddr := app.Flag("metrics-addr", "Optional address to serve Prometheus metrics on.").String()
	debug := app.Flag("debug", "Enable debug logging.").Short('d').Bool()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := slog.With(dbrelay.ComponentKey, dbrelay.ComponentCLI)

	if err := run(*configPath, *metricsAddr, log); err != nil {
		log.Error("Failed to run.", "error", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr string, log *slog.Logger) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return trace.BadParameter("failed to parse %v: %v", configPath, err)
	}
	if len(fc.Routes) == 0 {
		return trace.BadParameter("no routes configured in %v", configPath)
	}

	for _, cfg := range fc.Routes {
		if err := cfg.CheckAndSetDefaults(); err != nil {
			return trace.Wrap(err)
		}
	}
	if err := routing.CheckRouteConfigs(fc.Routes); err != nil {
		return trace.Wrap(err)
	}

	routers := make([]*routing.Router, 0, len(fc.Routes))
	for _, cfg := range fc.Routes {
		router, err := routing.New(*cfg)
		if err != nil {
			return trace.Wrap(err, "route %s", cfg.Name)
		}
		routers = append(routers, router)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	for _, router := range routers {
		group.Go(func() error {
			return router.Serve(ctx)
		})
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("Serving metrics.", "address", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error("Metrics server stopped.", "error", err)
			}
		}()
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stopCh
		log.Info("Shutting down.")
		for _, router := range routers {
			router.Stop()
		}
		cancel()
	}()

	notifyRevalidate(func() {
		for _, router := range routers {
			router.Revalidate()
		}
	})

	return trace.Wrap(group.Wait())
}
