package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"

	"github.com/atrilabs/atri-runtime/internal/errors"
	"github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// maxAppSize bounds the app definition read from any source.
const maxAppSize = 8 << 20

// AppDefinition is the app exported by the editor: the routes and the
// initial state of each.
type AppDefinition struct {
	Name   string                     `yaml:"name" json:"name"`
	Routes map[string]RouteDefinition `yaml:"routes" json:"routes"`

	source   string
	defaults map[string]state.Map
}

// RouteDefinition describes one route of the app.
type RouteDefinition struct {
	Defaults map[string]any `yaml:"defaults" json:"defaults"`
}

// ObjectFetcher reads objects from S3. *s3.Client implements it.
type ObjectFetcher interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadApp reads and parses the app definition at source, a file path or an
// s3://bucket/key URL. fetcher serves s3 sources; when nil, one is built
// from the environment.
func LoadApp(ctx context.Context, source string, fetcher ObjectFetcher) (*AppDefinition, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "s3://") {
		if fetcher == nil {
			fetcher = NewS3Fetcher(AppConfig{})
		}
		data, err = fetchS3(ctx, fetcher, source)
	} else {
		data, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}
	return ParseApp(source, data)
}

func readFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.New("E110").Wrap(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxAppSize+1))
	if err != nil {
		return nil, errors.New("E110").Wrap(err)
	}
	if len(data) > maxAppSize {
		return nil, errors.New("E111").WithDetail(fmt.Sprintf("%s is larger than %d bytes", name, maxAppSize))
	}
	return data, nil
}

func fetchS3(ctx context.Context, fetcher ObjectFetcher, source string) ([]byte, error) {
	bucket, key, err := parseS3URL(source)
	if err != nil {
		return nil, errors.New("E110").Wrap(err)
	}
	out, err := fetcher.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.New("E112").Wrap(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxAppSize+1))
	if err != nil {
		return nil, errors.New("E112").Wrap(err)
	}
	if len(data) > maxAppSize {
		return nil, errors.New("E111").WithDetail(fmt.Sprintf("%s is larger than %d bytes", source, maxAppSize))
	}
	return data, nil
}

func parseS3URL(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("app source %q: %w", source, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("app source %q: want s3://bucket/key", source)
	}
	return u.Host, key, nil
}

// ParseApp parses an app definition. JSON is recognized by a .json
// extension; everything else is read as YAML. Defaults are converted to
// state values, and values clients could not receive are rejected.
func ParseApp(source string, data []byte) (*AppDefinition, error) {
	app := &AppDefinition{source: source}

	var err error
	if isJSON(source) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		err = dec.Decode(app)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(app)
		if err == io.EOF {
			err = nil
		}
	}
	if err != nil {
		return nil, errors.New("E111").WithDetail(source + ": " + err.Error())
	}

	app.defaults = make(map[string]state.Map, len(app.Routes))
	for p, rd := range app.Routes {
		canonical, err := routes.Canonical(p)
		if err != nil {
			return nil, errors.New("E120").WithDetail(fmt.Sprintf("%s: route %q", source, p)).Wrap(err)
		}
		if _, dup := app.defaults[canonical]; dup {
			return nil, errors.New("E121").WithDetail(fmt.Sprintf("%s: %q and another route both resolve to %s", source, p, canonical))
		}
		m, err := state.MapFromAny(rd.Defaults)
		if err == nil {
			err = m.Validate()
		}
		if err != nil {
			return nil, errors.New("E113").WithDetail(fmt.Sprintf("%s: route %s", source, canonical)).Wrap(err)
		}
		app.defaults[canonical] = m
	}
	return app, nil
}

func isJSON(source string) bool {
	ext := filepath.Ext(source)
	if strings.HasPrefix(source, "s3://") {
		ext = path.Ext(source)
	}
	return strings.EqualFold(ext, ".json")
}

// Source returns where the definition was loaded from.
func (a *AppDefinition) Source() string {
	return a.source
}

// Paths returns the canonical route paths of the definition, sorted.
func (a *AppDefinition) Paths() []string {
	paths := make([]string, 0, len(a.defaults))
	for p := range a.defaults {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Defaults returns a copy of the defaults of the route at the canonical
// path p.
func (a *AppDefinition) Defaults(p string) (state.Map, bool) {
	m, ok := a.defaults[p]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Apply merges the definition into the generated routes: definition
// defaults override generated ones key by key. Every route of the
// definition must have generated hooks. A nil definition returns the
// generated routes unchanged.
func (a *AppDefinition) Apply(generated []routes.Route) ([]routes.Route, error) {
	if a == nil {
		return generated, nil
	}

	byPath := make(map[string]int, len(generated))
	for i, rt := range generated {
		canonical, err := routes.Canonical(rt.Path)
		if err != nil {
			return nil, errors.New("E120").WithDetail(fmt.Sprintf("generated route %q", rt.Path)).Wrap(err)
		}
		byPath[canonical] = i
	}

	out := make([]routes.Route, len(generated))
	copy(out, generated)
	for _, p := range a.Paths() {
		i, ok := byPath[p]
		if !ok {
			return nil, errors.New("E122").WithDetail(fmt.Sprintf("%s: route %s", a.source, p))
		}
		merged := out[i].Defaults.Clone()
		for k, v := range a.defaults[p] {
			merged[k] = v
		}
		out[i].Defaults = merged
	}
	return out, nil
}
