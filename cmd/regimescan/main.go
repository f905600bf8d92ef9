// cmd/regimescan replays cached candles from SQLite through the regime
// engine, without touching any exchange.
//
// Usage:
//
//	go run ./cmd/regimescan --exchange=binance.us --symbol=BTC --interval=1h
//	go run ./cmd/regimescan --mode=transitions --limit=1000
//	go run ./cmd/regimescan --mode=tail --redis=localhost:6379
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"regime-seeker/internal/model"
	"regime-seeker/internal/regime"
	redisstore "regime-seeker/internal/store/redis"
	sqlitestore "regime-seeker/internal/store/sqlite"
	"regime-seeker/internal/volprofile"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	mode := flag.String("mode", "summary", "summary | transitions | profile | instruments | tail")
	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	exchange := flag.String("exchange", "binance.us", "Exchange name")
	symbol := flag.String("symbol", "BTC", "Base symbol")
	interval := flag.String("interval", "1h", "Candle interval")
	limit := flag.Int("limit", 500, "Most recent candles to replay (0=all)")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for --mode=tail")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if *mode == "tail" {
		if err := tail(ctx, *redisAddr); err != nil && ctx.Err() == nil {
			log.Fatalf("[regimescan] tail: %v", err)
		}
		return
	}

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[regimescan] sqlite open failed: %v", err)
	}
	defer store.Close()

	if *mode == "instruments" {
		insts, err := store.Instruments(ctx)
		if err != nil {
			log.Fatalf("[regimescan] list instruments: %v", err)
		}
		for _, inst := range insts {
			fmt.Println(inst.Key())
		}
		return
	}

	inst := model.Instrument{Exchange: *exchange, Symbol: *symbol, Interval: *interval}
	candles, err := store.ReadCandles(ctx, inst, *limit)
	if err != nil {
		log.Fatalf("[regimescan] read candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[regimescan] no cached candles for %s", inst.Key())
	}
	log.Printf("[regimescan] %s: %d candles %s → %s", inst.Key(), len(candles),
		candles[0].TS().Format(time.RFC3339), candles[len(candles)-1].TS().Format(time.RFC3339))

	engine := regime.NewDefault()
	switch *mode {
	case "summary":
		summary(engine, candles)
	case "transitions":
		transitions(ctx, engine, inst.Key(), candles)
	case "profile":
		profile(candles)
	default:
		log.Fatalf("[regimescan] unknown mode %q", *mode)
	}
}

// summary prints the time spent in each state and the final bar.
func summary(engine *regime.Engine, candles []model.Candle) {
	enriched := engine.ComputeSignals(candles)
	counts := make(map[string]int, len(regime.All))
	for _, e := range enriched {
		counts[e.State]++
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tBARS\tSHARE")
	for _, s := range regime.All {
		n := counts[string(s)]
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", s, n, 100*float64(n)/float64(len(enriched)))
	}
	w.Flush()

	last := enriched[len(enriched)-1]
	fmt.Printf("\nlast: %s close=%.2f ema=%.2f adx=%.2f di+=%.2f di-=%.2f\n",
		regime.ShortName(regime.State(last.State)), last.Close, last.EMAValue(), last.ADX, last.DIPlus, last.DIMinus)
	fmt.Println(regime.Tip(regime.State(last.State)))
}

// transitions streams the candles bar by bar and prints every state change.
// The newest cached candle is the exchange's forming bar, so it is peeked
// rather than folded in.
func transitions(ctx context.Context, engine *regime.Engine, key string, candles []model.Candle) {
	in := make(chan regime.Bar, 64)
	out := make(chan regime.Update, 64)
	go func() {
		defer close(in)
		for i, c := range candles {
			select {
			case in <- regime.Bar{Key: key, Candle: c, Forming: i == len(candles)-1}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		engine.NewStream().Run(ctx, in, out)
		close(out)
	}()

	changes := 0
	for u := range out {
		if !u.Changed || u.Prev == "" {
			continue
		}
		tag := ""
		if u.Live {
			tag = "  (forming)"
		} else {
			changes++
		}
		fmt.Printf("%s  %-16s → %-16s close=%.2f adx=%.2f%s\n",
			u.Enriched.TS().Format(time.RFC3339), u.Prev, u.Enriched.State, u.Enriched.Close, u.Enriched.ADX, tag)
	}
	fmt.Printf("\n%d transitions over %d closed bars\n", changes, len(candles)-1)
}

func profile(candles []model.Candle) {
	res, ok := volprofile.NewDefault().Calculate(candles)
	if !ok {
		fmt.Println("no profile: zero price range")
		return
	}
	fmt.Printf("POC %.2f  VAH %.2f  VAL %.2f  value area %.1f%% of %.2f\n",
		res.POC, res.VAH, res.VAL, 100*res.ValueAreaVolume/res.TotalVolume, res.TotalVolume)

	const width = 40
	for i := len(res.Histogram) - 1; i >= 0; i-- {
		lv := res.Histogram[i]
		bar := int(width * lv.Volume / res.MaxVolume)
		marker := " "
		if lv.IsPOC {
			marker = "*"
		} else if lv.IsValueArea {
			marker = "|"
		}
		fmt.Printf("%12.2f %s %s\n", lv.Price, marker, strings.Repeat("#", bar))
	}
}

// tail prints regime snapshots as regimed publishes them.
func tail(ctx context.Context, addr string) error {
	pub, err := redisstore.New(redisstore.Config{Addr: addr})
	if err != nil {
		return err
	}
	defer pub.Close()

	out := make(chan model.RegimeSnapshot, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-out:
				fmt.Printf("%s  %-28s %-16s adx=%.2f close=%.2f\n",
					s.TS.Format(time.RFC3339), s.Instrument.Key(), s.State, s.ADX, s.Close)
			}
		}
	}()
	return pub.Subscribe(ctx, redisstore.AllRegimeChannels, out)
}
