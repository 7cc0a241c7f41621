package cache_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonwraymond/docketcache/cache"
	"github.com/jonwraymond/docketcache/config"
)

func exampleConfig() (config.Config, func()) {
	dir, _ := os.MkdirTemp("", "docket-example")
	cfg := config.Default()
	cfg.Root = filepath.Join(dir, "cache")
	cfg.Audit.Path = filepath.Join(dir, "docket.log")
	return cfg, func() { _ = os.RemoveAll(dir) }
}

func ExampleCache_Get() {
	cfg, cleanup := exampleConfig()
	defer cleanup()

	c, err := cache.New(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx := context.Background()

	c.Set(ctx, "alloptions", map[string]any{"blogname": "Docket"}, "options", 0)

	// A second cache on the same root reads what the first one wrote.
	other, _ := cache.New(cfg)
	v, ok := other.Get(ctx, "alloptions", "options", false)
	fmt.Println(ok, v.(map[string]any)["blogname"])
	// Output:
	// true Docket
}

func ExampleCache_Incr() {
	cfg, cleanup := exampleConfig()
	defer cleanup()

	c, _ := cache.New(cfg)
	ctx := context.Background()

	c.Set(ctx, "views", 10, "counters", 0)
	n, _ := c.Incr(ctx, "views", 5, "counters")
	fmt.Println(n)
	n, _ = c.Decr(ctx, "views", 100, "counters")
	fmt.Println(n)
	// Output:
	// 15
	// 0
}

func ExampleCache_Flush() {
	cfg, cleanup := exampleConfig()
	defer cleanup()

	c, _ := cache.New(cfg)
	ctx := context.Background()
	c.Set(ctx, "a", 1, "g", 0)
	c.Set(ctx, "b", 2, "g", 0)

	res := c.Flush(ctx)
	fmt.Println(res.OK, res.Removed)
	// Output:
	// true 2
}

func ExampleHooks_Notify() {
	cfg, cleanup := exampleConfig()
	defer cleanup()

	c, _ := cache.New(cfg)
	ctx := context.Background()
	c.Set(ctx, "alloptions", map[string]any{}, "options", 0)

	hooks := cache.NewHooks(c)
	hooks.RegisterDefaults()
	n := hooks.Notify(ctx, cache.EventOptionUpdated, cache.OptionChange{Name: "siteurl", Autoload: true})
	fmt.Println(n)
	// Output:
	// 1
}
