package people

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/swapi-loader/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Resolver fetches a list of reference URLs, returning one result per URL
// in input order. *client.Client satisfies it.
type Resolver interface {
	FetchAll(ctx context.Context, urls []string) []client.Result
}

// Reference set names, as reported in IncompleteError.Sets.
const (
	SetFilms     = "films"
	SetHomeworld = "homeworld"
	SetSpecies   = "species"
	SetStarships = "starships"
	SetVehicles  = "vehicles"
)

// Assembler builds Rows from primary records.
type Assembler struct {
	resolver Resolver
	logger   zerolog.Logger
}

// NewAssembler creates an assembler that resolves references through r.
func NewAssembler(r Resolver) *Assembler {
	return &Assembler{
		resolver: r,
		logger:   log.With().Str("component", "assembler").Logger(),
	}
}

// resolved is one reference set after fetching and decoding.
type resolved struct {
	refs     []Reference
	complete bool
}

// Assemble resolves the references of one primary record and flattens it.
// It returns a nil Row and a non-nil error when the record must be dropped:
// the primary is absent, has no usable url, or any reference set is incomplete.
// A null homeworld is not fetched and yields a Row with a nil Homeworld.
func (a *Assembler) Assemble(ctx context.Context, primary client.Result) (*Row, error) {
	if !primary.OK() {
		return nil, fmt.Errorf("%w: %v", ErrUnfetchable, primary.Err)
	}

	var p Person
	if err := decodeObject(primary, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnfetchable, primary.URL, err)
	}
	if strings.TrimSpace(p.URL) == "" {
		return nil, fmt.Errorf("%w: fetched from %s", ErrNoURL, primary.URL)
	}

	id, err := ParseID(p.URL)
	if err != nil {
		return nil, err
	}

	var (
		films, species, starships, vehicles resolved
		homeworld                           = resolved{complete: true}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { films = a.resolve(gctx, p.Films); return nil })
	g.Go(func() error { species = a.resolve(gctx, p.Species); return nil })
	g.Go(func() error { starships = a.resolve(gctx, p.Starships); return nil })
	g.Go(func() error { vehicles = a.resolve(gctx, p.Vehicles); return nil })
	if p.Homeworld != nil && strings.TrimSpace(*p.Homeworld) != "" {
		g.Go(func() error { homeworld = a.resolve(gctx, []string{*p.Homeworld}); return nil })
	}
	_ = g.Wait()

	var missing []string
	for _, set := range []struct {
		name string
		r    resolved
	}{
		{SetFilms, films},
		{SetHomeworld, homeworld},
		{SetSpecies, species},
		{SetStarships, starships},
		{SetVehicles, vehicles},
	} {
		if !set.r.complete {
			missing = append(missing, set.name)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{URL: p.URL, Sets: missing}
	}

	row := &Row{
		ID:        id,
		Name:      p.Name,
		BirthYear: p.BirthYear,
		EyeColor:  p.EyeColor,
		Gender:    p.Gender,
		HairColor: p.HairColor,
		Height:    p.Height,
		Mass:      p.Mass,
		SkinColor: p.SkinColor,
		Films:     joinTitles(films.refs),
		Species:   joinNames(species.refs),
		Starships: joinNames(starships.refs),
		Vehicles:  joinNames(vehicles.refs),
	}
	if len(homeworld.refs) == 1 {
		name := homeworld.refs[0].Name
		row.Homeworld = &name
	}

	a.logger.Debug().Int("id", id).Str("name", row.Name).Msg("Record assembled")
	return row, nil
}

// resolve fetches urls and decodes each document. The set is complete only
// if every URL produced a JSON object.
func (a *Assembler) resolve(ctx context.Context, urls []string) resolved {
	results := a.resolver.FetchAll(ctx, urls)
	out := resolved{refs: make([]Reference, 0, len(results)), complete: true}

	for _, res := range results {
		var ref Reference
		if err := decodeObject(res, &ref); err != nil {
			a.logger.Debug().Err(err).Str("url", res.URL).Msg("Reference unresolved")
			out.complete = false
			continue
		}
		out.refs = append(out.refs, ref)
	}
	return out
}

// decodeObject decodes a fetched document that must be a JSON object.
func decodeObject(res client.Result, v any) error {
	if !res.OK() {
		return res.Err
	}
	if body := bytes.TrimSpace(res.Body); len(body) == 0 || body[0] != '{' {
		return fmt.Errorf("%s: document is not a JSON object", res.URL)
	}
	return json.Unmarshal(res.Body, v)
}

func joinTitles(refs []Reference) string {
	titles := make([]string, len(refs))
	for i, r := range refs {
		titles[i] = r.Title
	}
	return strings.Join(titles, ", ")
}

func joinNames(refs []Reference) string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return strings.Join(names, ", ")
}
