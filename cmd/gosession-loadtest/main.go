package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/envconfig"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const loadtestOrigin = "loadtest"

type chainState struct {
	mu    sync.Mutex
	token string
}

func main() {
	var (
		chains      = flag.Int("chains", 10000, "number of refresh chains to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gs", "session key prefix")
		envPrefix   = flag.String("env-prefix", "GS", "environment prefix for origin configuration")
		verbose     = flag.Bool("v", false, "development logging")
	)
	flag.Parse()

	if *chains <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "chains, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewRedisStore(client, *prefix)
	if _, err := store.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis ping failed: %v\n", err)
		os.Exit(1)
	}

	m, err := goSession.NewManager(store,
		goSession.WithLogger(logger),
		goSession.WithMetrics(goSession.MetricsConfig{Enabled: true, EnableLatencyHistograms: true}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "manager: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cfg, err := originConfig(*envPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "origin config: %v\n", err)
		os.Exit(1)
	}
	if err := m.DefineOrigin(loadtestOrigin, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "define origin: %v\n", err)
		os.Exit(1)
	}

	states := make([]chainState, *chains)
	fmt.Printf("seeding %d chains...\n", *chains)
	startSeed := time.Now()
	for i := range states {
		rt, err := m.GenerateRefreshToken(ctx, fmt.Sprintf("user-%d", i%1000), fmt.Sprintf("device-%d", i), loadtestOrigin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i].token = rt.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, len(states), func(idx int) error {
		st := &states[idx]
		st.mu.Lock()
		token := st.token
		st.mu.Unlock()

		v, err := m.ValidateRefreshToken(ctx, token, loadtestOrigin)
		if err != nil {
			return err
		}
		if !v.IsValid {
			return fmt.Errorf("chain %d invalid", idx)
		}
		return nil
	})

	rotateStats := runPhase(*ops, *concurrency, len(states), func(idx int) error {
		st := &states[idx]
		st.mu.Lock()
		defer st.mu.Unlock()

		res, err := m.RotateRefreshToken(ctx, st.token, loadtestOrigin)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("rotation rejected: %s", res.Error)
		}
		st.token = res.Token
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)

	snap := m.MetricsSnapshot()
	fmt.Printf("counters: rotation_success=%d replay=%d race_lost=%d rejected=%d\n",
		snap.Counters[goSession.MetricRotationSuccess],
		snap.Counters[goSession.MetricRotationReplay],
		snap.Counters[goSession.MetricRotationRaceLost],
		snap.Counters[goSession.MetricRotationRejected],
	)
}

// originConfig reads the loadtest origin from the environment, falling back to
// an HS256 origin with a fixed secret.
func originConfig(prefix string) (goSession.OriginConfig, error) {
	configs, err := envconfig.Load(prefix, loadtestOrigin)
	if err != nil {
		return goSession.OriginConfig{}, err
	}
	cfg := configs[loadtestOrigin]
	if cfg.JWTSecret == "" && cfg.JWTOptions.PrivateKey == nil {
		cfg.JWTSecret = "loadtest-secret"
	}
	return cfg, nil
}

func runPhase(ops, concurrency, n int, op func(idx int) error) phaseStats {
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
				err := op(r.Intn(n))
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
	return computeStats(time.Since(start), latencies, failures)
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
	return samples[(len(samples)-1)*p/100]
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
