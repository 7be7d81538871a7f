// Package config loads the runtime configuration and the app definition.
//
// The runtime configuration is stored in atri.json next to the app:
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "allowedOrigins": ["https://editor.example.com"],
//	    "shutdownTimeout": "30s"
//	  },
//	  "session": {
//	    "maxEventQueue": 256,
//	    "handlerTimeout": "5s",
//	    "idleTimeout": "5m",
//	    "resumeWindow": "30s"
//	  },
//	  "workers": {"poolSize": 0},
//	  "log": {"level": "info", "format": "text"},
//	  "health": {"maxGoroutines": 10000, "maxMemoryMB": 512},
//	  "app": {"source": "app.yaml"}
//	}
//
// Durations are Go duration strings. The app definition, exported by the
// editor, is YAML or JSON and may live on disk or in S3:
//
//	routes:
//	  /counter:
//	    defaults:
//	      count: 0
//	      title: Clicks
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := config.LoadApp(ctx, cfg.AppSource(), nil)
package config
