// Package config provides loading and environment overlay for basekv's
// process-level configuration. It exposes a Default() baseline and helpers
// to build a Manager's options.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/basekv.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	mgr := manager.New(manager.Options{Config: cfg})
//	defer mgr.CloseAll()
package config
