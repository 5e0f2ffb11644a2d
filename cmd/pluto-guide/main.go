// Command pluto-guide: build channel lineups and XMLTV guides from the
// streaming backend, or serve them.
//
//	channels  Fetch and merge region catalogs, save JSON
//	guide     Full pipeline: catalogs, timelines, XMLTV (+ .gz) and SQLite snapshot
//	serve     Build the guide, serve it over HTTP, refresh on a ticker or SIGHUP
//	token     Acquire one pooled stream token for a region
//	probe     Boot a throwaway session per region; optionally check a running server
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/config"
	"github.com/snapetech/plutoguide/internal/guide"
	"github.com/snapetech/plutoguide/internal/health"
	"github.com/snapetech/plutoguide/internal/httpclient"
	"github.com/snapetech/plutoguide/internal/identity"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/provider"
	"github.com/snapetech/plutoguide/internal/tuner"
)

func regionList(flagVal string, def []string) []string {
	if strings.TrimSpace(flagVal) == "" {
		return def
	}
	out := config.SplitList(flagVal)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

func main() {
	_ = config.LoadEnvFile(".env")

	channelsCmd := flag.NewFlagSet("channels", flag.ExitOnError)
	channelsRegions := channelsCmd.String("regions", "", "Comma-separated regions, merge order (default: PLUTO_GUIDE_REGIONS)")
	channelsOut := channelsCmd.String("out", "", "Catalog JSON path (default: PLUTO_GUIDE_CATALOG); - = stdout")

	guideCmd := flag.NewFlagSet("guide", flag.ExitOnError)
	guideRegions := guideCmd.String("regions", "", "Comma-separated regions (default: PLUTO_GUIDE_REGIONS)")
	guideWindows := guideCmd.Int("windows", 0, "Time windows per region (default: PLUTO_GUIDE_WINDOWS)")
	guideOut := guideCmd.String("out", "", "XMLTV path; a .gz copy is written alongside (default: PLUTO_GUIDE_XMLTV, else stdout)")
	guideStore := guideCmd.String("store", "", "SQLite snapshot path (default: PLUTO_GUIDE_STORE)")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveAddr := serveCmd.String("addr", "", "Listen address (default: PLUTO_GUIDE_ADDR)")
	serveBaseURL := serveCmd.String("base-url", "", "Public base URL advertised in lineup.json")
	serveRegions := serveCmd.String("regions", "", "Comma-separated regions (default: PLUTO_GUIDE_REGIONS)")
	serveWindows := serveCmd.Int("windows", 0, "Time windows per region (default: PLUTO_GUIDE_WINDOWS)")
	serveRefresh := serveCmd.Duration("refresh", -1, "Guide refresh interval (default: PLUTO_GUIDE_REFRESH); 0 = only at startup and SIGHUP")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenRegion := tokenCmd.String("region", "local", "Region to boot the session for")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)
	probeRegions := probeCmd.String("regions", "", "Comma-separated regions to probe (default: PLUTO_GUIDE_REGIONS); all = every known region")
	probeTimeout := probeCmd.Duration("timeout", 30*time.Second, "Overall probe timeout")
	probeServer := probeCmd.String("server", "", "Also check a running guide server at this base URL")
	probeXMLTV := probeCmd.String("xmltv", "", "Also check that this XMLTV file exists and is fresh")
	probeMaxAge := probeCmd.Duration("max-age", 24*time.Hour, "Maximum XMLTV file age for -xmltv")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <channels|guide|serve|token|probe> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  channels  Fetch and merge region catalogs, save JSON\n")
		fmt.Fprintf(os.Stderr, "  guide     Build XMLTV guide (+ .gz, optional SQLite snapshot)\n")
		fmt.Fprintf(os.Stderr, "  serve     Serve lineup.json, guide.xml, tokens; refresh on -refresh / SIGHUP\n")
		fmt.Fprintf(os.Stderr, "  token     Acquire one pooled stream token\n")
		fmt.Fprintf(os.Stderr, "  probe     Boot a throwaway session per region, report OK / Cloudflare / fail\n")
		os.Exit(1)
	}

	cfg := config.Load()
	log := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	fatal := func(format string, args ...interface{}) {
		log.Errorf(format, args...)
		os.Exit(1)
	}

	a, err := newApp(cfg, log)
	if err != nil {
		fatal("Config: %v", err)
	}

	switch os.Args[1] {
	case "channels":
		_ = channelsCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		regions := regionList(*channelsRegions, cfg.Regions)
		chs, err := a.fetchChannels(ctx, regions)
		if err != nil {
			fatal("Fetch channels failed: %v", err)
		}
		out := *channelsOut
		if out == "" {
			out = cfg.CatalogPath
		}
		if out == "-" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(chs); err != nil {
				fatal("Encode channels: %v", err)
			}
			return
		}
		if err := catalog.Save(out, chs); err != nil {
			fatal("Save catalog failed: %v", err)
		}
		log.Printf("Saved %d channels from %s to %s", len(chs), strings.Join(regions, ","), out)

	case "guide":
		_ = guideCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		windows := *guideWindows
		if windows <= 0 {
			windows = cfg.WindowCount
		}
		out := *guideOut
		if out == "" {
			out = cfg.XMLTVPath
		}
		storePath := *guideStore
		if storePath == "" {
			storePath = cfg.StorePath
		}
		chs, progs, err := a.buildGuide(ctx, regionList(*guideRegions, cfg.Regions), windows)
		if err != nil {
			fatal("Guide failed: %v", err)
		}
		if out == "" {
			if err := guide.WriteXMLTV(os.Stdout, chs, progs); err != nil {
				fatal("Write guide: %v", err)
			}
		}
		if err := a.publish(ctx, chs, progs, out, storePath, nil); err != nil {
			fatal("Publish guide failed: %v", err)
		}

	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		runServe(a, log, *serveAddr, *serveBaseURL, regionList(*serveRegions, cfg.Regions), *serveWindows, *serveRefresh)

	case "token":
		_ = tokenCmd.Parse(os.Args[2:])
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout+5*time.Second)
		defer cancel()
		tok, slot, err := a.pool.AcquireToken(ctx, strings.ToLower(*tokenRegion))
		if err != nil {
			fatal("Token failed: %v", err)
		}
		fmt.Printf("slot=%s region=%s expires=%s\n%s\n",
			slot.ID(), tok.Region, tok.IssuedAt.Add(identity.TokenTTL).UTC().Format(time.RFC3339), tok.Value)

	case "probe":
		_ = probeCmd.Parse(os.Args[2:])
		regions := regionList(*probeRegions, cfg.Regions)
		if len(regions) == 1 && regions[0] == "all" {
			regions = a.regions.Codes()
		}
		ctx, cancel := context.WithTimeout(context.Background(), *probeTimeout)
		defer cancel()
		log.Printf("Probing boot for %d region(s) (timeout %v)...", len(regions), *probeTimeout)
		results := a.api.ProbeRegions(ctx, httpclient.WithTimeout(cfg.HTTPTimeout), a.probeTargets(regions))
		failed := 0
		for _, r := range results {
			if r.Status != provider.StatusOK {
				failed++
				log.Printf("  %-8s %-10s HTTP %d  %dms  %v", r.Region, r.Status, r.StatusCode, r.LatencyMs, r.Err)
				continue
			}
			log.Printf("  %-8s %-10s HTTP %d  %dms", r.Region, r.Status, r.StatusCode, r.LatencyMs)
		}
		log.Printf("--- boot: %d OK  |  %d failed ---", len(results)-failed, failed)
		if *probeServer != "" {
			if err := health.CheckEndpoints(ctx, *probeServer); err != nil {
				failed++
				log.Printf("Server %s: %v", *probeServer, err)
			} else {
				log.Printf("Server %s: OK", *probeServer)
			}
		}
		if *probeXMLTV != "" {
			if err := health.CheckGuideFile(*probeXMLTV, *probeMaxAge, time.Now()); err != nil {
				failed++
				log.Printf("XMLTV: %v", err)
			} else {
				log.Printf("XMLTV %s: OK", *probeXMLTV)
			}
		}
		if failed > 0 {
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func runServe(a *app, log *logrus.Logger, addr, baseURL string, regions []string, windows int, refresh time.Duration) {
	cfg := a.cfg
	if addr == "" {
		addr = cfg.Addr
	}
	if windows <= 0 {
		windows = cfg.WindowCount
	}
	if refresh < 0 {
		refresh = cfg.RefreshInterval
	}
	srv := &tuner.Server{
		Addr:    addr,
		BaseURL: baseURL,
		Tokens:  a.pool,
		Regions: regions,
		Log:     log,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StorePath != "" {
		chs, progs, generated, ok, err := restore(runCtx, cfg.StorePath)
		switch {
		case err != nil:
			log.Printf("Restore snapshot %s: %v", cfg.StorePath, err)
		case ok:
			if err := srv.UpdateGuide(chs, progs); err != nil {
				log.Printf("Restore snapshot: %v", err)
			} else {
				log.Printf("Restored guide snapshot from %s (generated %s)", cfg.StorePath, generated.Format(time.RFC3339))
			}
		}
	}

	refreshGuide := func() {
		chs, progs, err := a.buildGuide(runCtx, regions, windows)
		if err != nil {
			log.Printf("Guide refresh failed: %v", err)
			return
		}
		// The served guide is only replaced after the sinks accepted it.
		if err := a.publish(runCtx, chs, progs, cfg.XMLTVPath, cfg.StorePath, srv); err != nil {
			log.Printf("Guide publish failed: %v", err)
		}
	}

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	defer signal.Stop(sigHUP)

	var tickerC <-chan time.Time
	if refresh > 0 {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	go func() {
		refreshGuide()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-tickerC:
				log.Print("Refreshing guide (scheduled) ...")
			case <-sigHUP:
				log.Print("SIGHUP received, dropping cached tokens and refreshing guide")
				a.pool.Reset()
			}
			refreshGuide()
		}
	}()

	if err := srv.Run(runCtx); err != nil {
		log.Errorf("Guide server failed: %v", err)
		os.Exit(1)
	}
}
