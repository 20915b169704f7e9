package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	otfoc "github.com/nsip/otf-outcomes"
	"github.com/nsip/otf-outcomes/calc"
	"github.com/nsip/otf-outcomes/internal/cache"
	"github.com/nsip/otf-outcomes/internal/store/jsonstore"
	"github.com/nsip/otf-outcomes/internal/store/pgstore"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
)

func main() {

	fs := flag.NewFlagSet("otf-outcomes", flag.ExitOnError)
	var (
		_             = fs.String("config", "", "config file (optional), json format.")
		serviceName   = fs.String("name", "", "name for this outcomes service instance")
		serviceID     = fs.String("id", "", "id for this outcomes service instance, leave blank to auto-generate a unique id")
		serviceHost   = fs.String("host", "localhost", "name/address of host for this service")
		servicePort   = fs.Int("port", 0, "port to run service on, if not specified will assign an available port automatically")
		snapshot      = fs.String("snapshot", "", "json snapshot file of course data")
		snapshotURL   = fs.String("snapshotURL", "", "url to fetch a json snapshot of course data from")
		snapshotToken = fs.String("snapshotToken", "", "access token sent when fetching the snapshot")
		dbURL         = fs.String("dbURL", "", "postgres connection url of the course management database")
		redisAddr     = fs.String("redisAddr", "", "redis address for the shared outcome grouping cache, in-process cache if empty")
		cacheTTL      = fs.Duration("cacheTTL", time.Hour, "how long an outcome grouping is reused, 0 for no expiry")
		logLevel      = fs.String("logLevel", "info", "log level: debug, info, warn, error or off")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("OTF_OUTCOMES_SRVC"),
	); err != nil {
		fmt.Printf("\nCannot read otf-outcomes configuration:\n%s\n\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, source, closeRepo, err := openRepository(ctx, *snapshot, *snapshotURL, *snapshotToken, *dbURL)
	if err != nil {
		cancel()
		fmt.Printf("\nCannot open course data:\n%s\n\n", err)
		return
	}
	defer closeRepo.Close()

	var groupCache calc.GroupingCache = cache.NewMemory(*cacheTTL)
	cacheDesc := "memory"
	if *redisAddr != "" {
		rc, err := cache.DialRedis(ctx, *redisAddr, *cacheTTL)
		if err != nil {
			cancel()
			fmt.Printf("\nCannot connect grouping cache:\n%s\n\n", err)
			return
		}
		defer rc.Close()
		groupCache = rc
		cacheDesc = "redis " + *redisAddr
	}
	cancel()

	opts := []otfoc.Option{
		otfoc.Name(*serviceName),
		otfoc.ID(*serviceID),
		otfoc.Host(*serviceHost),
		otfoc.Port(*servicePort),
		otfoc.Repository(repo, source),
		otfoc.GroupingCache(groupCache, cacheDesc),
		otfoc.LogLevel(*logLevel),
	}

	srvc, err := otfoc.New(opts...)
	if err != nil {
		fmt.Printf("\nCannot create otf-outcomes service:\n%s\n\n", err)
		return
	}

	srvc.PrintConfig()

	// signal handler for shutdown
	closed := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		fmt.Println("\notf-outcomes shutting down")
		srvc.Shutdown()
		fmt.Println("otf-outcomes closed")
		close(closed)
	}()

	srvc.Start()

	// block until shutdown by sig-handler
	<-closed

}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

//
// exactly one source of course data must be configured
//
func openRepository(ctx context.Context, file, url, token, dbURL string) (calc.Repository, string, io.Closer, error) {
	set := 0
	for _, v := range []string{file, url, dbURL} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, "", nil, errors.New("supply exactly one of -snapshot, -snapshotURL or -dbURL")
	}

	switch {
	case file != "":
		s, err := jsonstore.Load(file)
		return s, "snapshot " + file, nopCloser{}, err
	case url != "":
		s, err := jsonstore.Fetch(url, token)
		return s, "snapshot " + url, nopCloser{}, err
	}
	s, err := pgstore.Open(ctx, dbURL)
	if err != nil {
		return nil, "", nil, err
	}
	return s, "postgres", s, nil
}
