// Package health reports whether a docket cache can do its job.
//
// StoreChecker looks at the store root and its sentinel, FrontChecker at the
// memory front's hit ratio. An Aggregator runs them together and renders a
// Report, which the HTTP handlers and the CLI both serve.
//
//	agg := health.NewAggregator()
//	agg.Register(
//	    health.NewStoreChecker(c),
//	    health.NewFrontChecker(c, health.FrontCheckerConfig{MinHitRatio: 0.5}),
//	)
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
package health
