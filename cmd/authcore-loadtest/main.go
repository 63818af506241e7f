package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bugforge/authcore"
	"github.com/bugforge/authcore/keys"
	"github.com/redis/go-redis/v9"
)

type subjectState struct {
	id      int64
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		fanout      = flag.Int("race-fanout", 16, "concurrent rotations of one refresh token in the race phase")
		raceRounds  = flag.Int("race-rounds", 200, "subjects hammered in the race phase")
		clients     = flag.Int("clients", 64, "distinct client addresses in the rate limit phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "aclt", "session key prefix")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 || *fanout <= 0 || *clients <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, ops, race-fanout, and clients must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	kp, err := keys.Generate(keys.DefaultRSABits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate keys: %v\n", err)
		os.Exit(1)
	}

	cfg := authcore.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithKeypair(kp).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]subjectState, *subjects)
	fmt.Printf("seeding %d subjects...\n", *subjects)
	startSeed := time.Now()
	for i := range states {
		id := int64(i + 1)
		pair, err := engine.Issue(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = subjectState{id: id, access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.Validate(ctx, states[r.Intn(len(states))].access, authcore.TokenAccess)
		return err
	})

	rotateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		pair, err := engine.Rotate(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.access, state.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	rate := runRateLimitPhase(ctx, engine, *ops, *concurrency, *clients)
	race := runRacePhase(ctx, engine, states, *raceRounds, *fanout)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
	fmt.Printf("ratelimit: allowed=%d denied=%d errors=%d\n", rate.allowed, rate.denied, rate.errors)
	fmt.Printf("race: rounds=%d fanout=%d single-winner=%d violations=%d\n", race.rounds, *fanout, race.singleWinner, race.violations)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: issued=%d rotate_ok=%d reuse_detected=%d store_unavailable=%d\n",
		snap.Counters[authcore.MetricTokenIssued],
		snap.Counters[authcore.MetricRotateSuccess],
		snap.Counters[authcore.MetricRefreshReuseDetected],
		snap.Counters[authcore.MetricStoreUnavailable],
	)

	if race.violations > 0 {
		os.Exit(1)
	}
}

// runPhase spreads ops calls of fn over concurrency workers.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type rateStats struct {
	allowed, denied, errors int64
}

func runRateLimitPhase(ctx context.Context, engine *authcore.Engine, ops, concurrency, clients int) rateStats {
	var out rateStats
	runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
		ip := "10.0." + strconv.Itoa(r.Intn(clients)/256) + "." + strconv.Itoa(r.Intn(clients)%256)
		_, err := engine.CheckRoute(ctx, ip, authcore.RouteLogin)
		switch {
		case err == nil:
			atomic.AddInt64(&out.allowed, 1)
		case errors.Is(err, authcore.ErrRateLimitExceeded):
			atomic.AddInt64(&out.denied, 1)
		default:
			atomic.AddInt64(&out.errors, 1)
		}
		return err
	})
	return out
}

type raceStats struct {
	rounds, singleWinner, violations int
}

// runRacePhase presents one refresh token fanout times at once per subject and
// checks that exactly one rotation wins.
func runRacePhase(ctx context.Context, engine *authcore.Engine, states []subjectState, rounds, fanout int) raceStats {
	var out raceStats
	for i := 0; i < rounds && i < len(states); i++ {
		state := &states[i]
		var (
			wg      sync.WaitGroup
			winners int64
			winner  *authcore.TokenPair
			mu      sync.Mutex
		)
		for j := 0; j < fanout; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pair, err := engine.Rotate(ctx, state.refresh)
				if err != nil {
					return
				}
				atomic.AddInt64(&winners, 1)
				mu.Lock()
				winner = pair
				mu.Unlock()
			}()
		}
		wg.Wait()

		out.rounds++
		if winners == 1 {
			out.singleWinner++
			state.access, state.refresh = winner.AccessToken, winner.RefreshToken
		} else {
			out.violations++
		}
	}
	return out
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
