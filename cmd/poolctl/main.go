// Command poolctl runs a soak test against the pool using an in-memory,
// UUID-stamped session resource, for manually exercising checkout/return
// under configurable concurrency. Flags and POOLCTL_* environment
// variables are wired the way tphakala-birdnet-go wires its own
// cmd/-layout root command: cobra for the command surface, viper for
// layered flag/env configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pool "github.com/cuttlepool/cuttlepool"
)

type session struct {
	id uuid.UUID
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("POOLCTL")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "poolctl",
		Short: "Soak-test a cuttlepool resource pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSoak(v)
		},
	}

	flags := cmd.Flags()
	flags.Int("capacity", 4, "steady-state pool capacity")
	flags.Int("overflow", 2, "extra slots above capacity")
	flags.Duration("timeout", 2*time.Second, "checkout timeout")
	flags.Int("workers", 8, "number of concurrent checkout workers")
	flags.Int("rounds", 20, "checkout/return rounds per worker")

	_ = v.BindPFlag("capacity", flags.Lookup("capacity"))
	_ = v.BindPFlag("overflow", flags.Lookup("overflow"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("workers", flags.Lookup("workers"))
	_ = v.BindPFlag("rounds", flags.Lookup("rounds"))

	return cmd
}

func runSoak(v *viper.Viper) error {
	factory := func(_ context.Context, _ map[string]any) (session, error) {
		return session{id: uuid.New()}, nil
	}

	p, err := pool.New(
		factory,
		v.GetInt("capacity"),
		pool.WithOverflow[session](v.GetInt("overflow")),
		pool.WithTimeout[session](v.GetDuration("timeout")),
	)
	if err != nil {
		return fmt.Errorf("new pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers := v.GetInt("workers")
	rounds := v.GetInt("rounds")

	var wg sync.WaitGroup
	var failures int
	var mu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				r, err := p.Get(ctx)
				if err != nil {
					mu.Lock()
					failures++
					mu.Unlock()
					continue
				}
				_ = r.Close()
			}
		}()
	}
	wg.Wait()

	fmt.Printf(
		"capacity=%d overflow=%d workers=%d rounds=%d failures=%d final size=%d available=%d\n",
		p.Capacity(), p.Overflow(), workers, rounds, failures, p.Size(), p.Available(),
	)
	return p.Shutdown(context.Background())
}
