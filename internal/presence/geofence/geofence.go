// Package geofence loads the company and project reference points a check-in
// can be attributed to. Points are contextual data only; nothing here
// evaluates a captured position against them.
package geofence

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownSite = errors.New("unknown site")

const (
	KindCompany = "company"
	KindProject = "project"
)

type Point struct {
	ID   string  `yaml:"id" json:"id"`
	Name string  `yaml:"name" json:"name"`
	Kind string  `yaml:"kind" json:"kind"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lng  float64 `yaml:"lng" json:"lng"`
}

type file struct {
	Company struct {
		Name    string  `yaml:"name"`
		Address string  `yaml:"address"`
		Lat     float64 `yaml:"lat"`
		Lng     float64 `yaml:"lng"`
	} `yaml:"company"`
	Projects []struct {
		ID   string  `yaml:"id"`
		Name string  `yaml:"name"`
		Lat  float64 `yaml:"lat"`
		Lng  float64 `yaml:"lng"`
	} `yaml:"projects"`
}

// Registry is an immutable set of points keyed by ID.
type Registry struct {
	points []Point
	byID   map[string]Point
}

// NewRegistry indexes pts. The first company point becomes the default.
func NewRegistry(pts []Point) (*Registry, error) {
	r := &Registry{byID: make(map[string]Point, len(pts))}
	for _, p := range pts {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("geofence: point %q has no id", p.Name)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("geofence: duplicate id %q", p.ID)
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return nil, fmt.Errorf("geofence: %s coordinates out of range", p.ID)
		}
		r.byID[p.ID] = p
		r.points = append(r.points, p)
	}
	return r, nil
}

// Parse reads the sites document:
//
//	company: {name: HQ, lat: -6.2, lng: 106.8}
//	projects:
//	  - {id: proj-1, name: Tower A, lat: -6.3, lng: 106.7}
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("geofence: parse: %w", err)
	}

	var pts []Point
	if strings.TrimSpace(f.Company.Name) != "" {
		pts = append(pts, Point{
			ID:   KindCompany,
			Name: f.Company.Name,
			Kind: KindCompany,
			Lat:  f.Company.Lat,
			Lng:  f.Company.Lng,
		})
	}
	for _, p := range f.Projects {
		pts = append(pts, Point{ID: p.ID, Name: p.Name, Kind: KindProject, Lat: p.Lat, Lng: p.Lng})
	}
	return NewRegistry(pts)
}

// LoadFile parses the YAML document at path. An empty path yields an empty
// registry.
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewRegistry(nil)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geofence: read %s: %w", path, err)
	}
	return Parse(b)
}

func (r *Registry) Lookup(id string) (Point, error) {
	p, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Point{}, ErrUnknownSite
	}
	return p, nil
}

// Default returns the company point, if one is configured.
func (r *Registry) Default() (Point, bool) {
	for _, p := range r.points {
		if p.Kind == KindCompany {
			return p, true
		}
	}
	return Point{}, false
}

// Resolve picks the point for id, falling back to the company point when id
// is empty. ok is false when nothing applies.
func (r *Registry) Resolve(id string) (Point, bool, error) {
	if strings.TrimSpace(id) == "" {
		p, ok := r.Default()
		return p, ok, nil
	}
	p, err := r.Lookup(id)
	if err != nil {
		return Point{}, false, err
	}
	return p, true, nil
}

func (r *Registry) Points() []Point {
	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}
