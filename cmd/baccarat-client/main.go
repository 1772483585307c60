package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/yola1107/baccarat/internal/conf"
	"github.com/yola1107/baccarat/internal/event"
	"github.com/yola1107/baccarat/internal/ledger"
	"github.com/yola1107/baccarat/internal/session"
	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/work"
)

var flagconf = flag.String("conf", "", "config file path, eg: -conf config.yaml")

func main() {
	flag.Parse()

	c := conf.Default()
	if *flagconf != "" {
		loaded, err := conf.Load(*flagconf)
		if err != nil {
			log.Fatalf("load conf: %v", err)
		}
		c = loaded
	}
	flush := log.Init(c.Log)
	defer flush()

	loop := work.NewLoop(1024)
	loop.Start()
	defer loop.Stop()

	sched := work.NewWheelScheduler(work.WithExecutor(loop))
	defer sched.Stop()

	bg := work.NewAntsLoop(8)
	if err := bg.Start(); err != nil {
		log.Fatalf("background pool: %v", err)
	}
	defer bg.Stop()

	bus := event.New(loop, sched)
	defer bus.Shutdown()

	odds, err := ledger.OddsTableFromConf(c.Game.Odds)
	if err != nil {
		log.Fatalf("odds table: %v", err)
	}

	book := ledger.New(ledger.Config{
		InitialBalance: c.Game.InitialBalance,
		HistoryCap:     c.Game.HistoryCap,
	}, bus, odds)
	book.Attach()
	defer book.Detach()
	book.UpdateGameState(ledger.GameRunning)

	bus.Subscribe(event.KindBalanceChanged, func(ev event.Event) {
		bc := ev.(*event.BalanceChanged)
		log.Infof("balance %v -> %v", bc.Old, bc.New)
	})
	bus.Subscribe(event.KindBetSettled, func(ev event.Event) {
		bs := ev.(*event.BetSettled)
		log.Infof("settled bet=%q type=%s win=%v winAmount=%v", bs.BetID, bs.BetType, bs.IsWin, bs.WinAmount)
	})

	mgr := session.NewManager(c.Server, bus, loop, sched, bg)
	defer mgr.Shutdown()

	if err := mgr.Connect(c.Server.Endpoint); err != nil {
		log.Warnf("initial connect failed: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infof("shutting down")
}
