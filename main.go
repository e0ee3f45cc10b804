package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/treemana/sieve/cache"
	"github.com/treemana/sieve/config"
	"github.com/treemana/sieve/denylist"
	"github.com/treemana/sieve/handler"
	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/supervisor"
	"github.com/treemana/sieve/upstream"
	"github.com/treemana/sieve/util"
)

var (
	configPath   = flag.String("config", config.DefaultPath, "configuration file, yaml or json")
	denylistPath = flag.String("denylist", "", "denylist file, overrides the configuration file")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sieve:", err)
		os.Exit(1)
	}
}

func run() error {
	option, cfgErr := config.Load(*configPath)

	// init log
	if err := initLog(option); err != nil {
		return err
	}
	defer log.Sync()

	if cfgErr != nil {
		log.Sugar.Warnf("config %s ignored, using defaults, error=[%+v]", *configPath, cfgErr)
	}

	deny, err := loadDenylist(option)
	if err != nil {
		return err
	}

	answers := cache.New()

	up, err := upstream.New(upstream.DefaultAddress, option.Upstream.Timeout)
	if err != nil {
		return err
	}

	targets := config.BindTargets(option, os.Getenv, util.LocalIP)
	log.Sugar.Infof("bind targets %v, upstream %s, denylist %d domains", targets, up.Address(), deny.Len())

	sv, err := supervisor.New(targets, handler.New(deny, answers, up), answers, option.Cache.SweepInterval)
	if err != nil {
		log.Sugar.Error(err)
		return err
	}

	// sieve is running until os exit
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return sv.Run(ctx)
}

func initLog(option *config.Option) error {
	lc := log.Config{
		File:       option.Log.File,
		STDOUT:     option.Log.STDOUT,
		JsonFormat: option.Log.JSON,
		MaxAge:     2,
		MaxSize:    10,
		MaxBackups: 100,
	}

	if option.Log.Verbose {
		lc.Level = -1
	}

	if err := log.Init(lc); err != nil {
		fmt.Println("log init error", err)
		return err
	}

	return nil
}

func loadDenylist(option *config.Option) (*denylist.Store, error) {
	path := option.Denylist
	if len(*denylistPath) > 0 {
		path = *denylistPath
	}

	if len(path) == 0 {
		return denylist.Default()
	}

	return denylist.LoadFile(path)
}
