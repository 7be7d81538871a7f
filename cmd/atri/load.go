package main

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/atrilabs/atri-runtime/app/routes"
	"github.com/atrilabs/atri-runtime/internal/config"
	"github.com/atrilabs/atri-runtime/internal/errors"
	pkgroutes "github.com/atrilabs/atri-runtime/pkg/routes"
)

// loadConfig loads atri.json from path, a file or a directory. With an
// empty path the working directory and its parents are searched, and the
// defaults are used when none is found.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root, err := config.FindProjectRoot(wd)
		if err != nil {
			warn("no %s found, using defaults", config.ConfigFileName)
			return config.New(), nil
		}
		return config.Load(root)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return config.Load(path)
	}
	return config.LoadFile(path)
}

// loadRoutes merges the app definition named by cfg into the generated
// routes. A missing definition at the default location is not an error:
// the generated defaults are used.
func loadRoutes(ctx context.Context, cfg *config.Config) ([]pkgroutes.Route, *config.AppDefinition, error) {
	generated := routes.All()
	if len(generated) == 0 {
		return nil, nil, errors.New("E123")
	}

	source := cfg.AppSource()
	if cfg.App.Source == config.DefaultAppSource {
		if _, err := os.Stat(source); os.IsNotExist(err) {
			return generated, nil, nil
		}
	}

	var fetcher config.ObjectFetcher
	if strings.HasPrefix(source, "s3://") {
		fetcher = config.NewS3Fetcher(cfg.App)
	}
	app, err := config.LoadApp(ctx, source, fetcher)
	if err != nil {
		return nil, nil, err
	}
	defs, err := app.Apply(generated)
	if err != nil {
		return nil, nil, err
	}
	return defs, app, nil
}

// buildRegistry returns a registry holding defs.
func buildRegistry(defs []pkgroutes.Route) (*pkgroutes.Registry, error) {
	reg := pkgroutes.NewRegistry()
	if err := reg.Replace(defs); err != nil {
		return nil, routeError(err)
	}
	return reg, nil
}

// routeError maps registry errors to coded CLI errors.
func routeError(err error) error {
	var (
		dup  *pkgroutes.DuplicateRouteError
		path *pkgroutes.PathError
	)
	switch {
	case stderrors.As(err, &dup):
		return errors.New("E121").Wrap(err)
	case stderrors.As(err, &path):
		return errors.New("E120").Wrap(err)
	}
	return err
}
