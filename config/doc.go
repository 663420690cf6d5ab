// Package config loads the tuning knobs of the cache, the pool and the scheduler from YAML
// and turns them into functional options.
//
// Durations are Go duration strings. Omitted keys keep their defaults:
//
//	cache:
//	  max_size: 500
//	  ttl: 30m
//	  sweep_interval: 1m
//	  single_flight: true
//	scheduler:
//	  min_request_spacing: 6s
//	  max_concurrent: 1
//	  cooldown_period: 1m
//	  log_prefix: discord
package config
