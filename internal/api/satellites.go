package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/cache"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/engine"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/transform"
)

const rad2deg = 180 / math.Pi

// satelliteSummary is the list-view shape. Angles are degrees at the JSON
// boundary; the internal representation stays in radians.
type satelliteSummary struct {
	NoradID        int       `json:"norad_id"`
	Name           string    `json:"name,omitempty"`
	IntlDesignator string    `json:"intl_designator,omitempty"`
	InclinationDeg float64   `json:"inclination_deg"`
	PerigeeKm      float64   `json:"perigee_km"`
	ApogeeKm       float64   `json:"apogee_km"`
	PeriodMin      float64   `json:"period_min"`
	Epoch          time.Time `json:"epoch"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func summarize(obj tle.Object) satelliteSummary {
	return satelliteSummary{
		NoradID:        obj.TLE.NoradID,
		Name:           obj.TLE.Name,
		IntlDesignator: obj.TLE.IntlDesignator,
		InclinationDeg: obj.TLE.Inclination * rad2deg,
		PerigeeKm:      obj.TLE.PerigeeAltitude(),
		ApogeeKm:       obj.TLE.ApogeeAltitude(),
		PeriodMin:      obj.TLE.PeriodMinutes(),
		Epoch:          obj.TLE.Epoch,
		UpdatedAt:      obj.UpdatedAt,
	}
}

func (s *Server) handleSatellites(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit", 0)
	if !okLimit || limit < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
		return
	}

	objects := s.deps.Catalog.List()
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}
	out := make([]satelliteSummary, 0, len(objects))
	for _, obj := range objects {
		out = append(out, summarize(obj))
	}
	ok(w, map[string]any{
		"satellites": out,
		"total":      s.deps.Catalog.Len(),
	})
}

// groundTrack is a geodetic sub-point plus altitude.
type groundTrack struct {
	LatDeg float64   `json:"lat_deg"`
	LonDeg float64   `json:"lon_deg"`
	AltKm  float64   `json:"alt_km"`
	At     time.Time `json:"at"`
}

func toGroundTrack(sv propagation.StateVector) groundTrack {
	ecef := transform.TEMEToECEF(sv.Pos, sv.Vel, sv.At)
	g := transform.ECEFToGeodetic(ecef.Pos)
	return groundTrack{
		LatDeg: g.LatDeg(),
		LonDeg: g.LonDeg(),
		AltKm:  g.Alt,
		At:     sv.At,
	}
}

type satelliteDetail struct {
	satelliteSummary

	Eccentricity float64      `json:"eccentricity"`
	RAANDeg      float64      `json:"raan_deg"`
	MeanMotion   float64      `json:"mean_motion_rev_day"`
	BStar        float64      `json:"bstar"`
	DeepSpace    bool         `json:"deep_space"`
	Superseded   int          `json:"superseded"`
	Meta         tle.Metadata `json:"metadata"`

	Position *groundTrack `json:"position,omitempty"`
	SpeedKmS float64      `json:"speed_km_s,omitempty"`
	PropErr  string       `json:"propagation_error,omitempty"`
}

func (s *Server) handleSatelliteDetail(w http.ResponseWriter, r *http.Request) {
	id, okID := pathID(r, "id")
	if !okID {
		fail(w, http.StatusBadRequest, kindBadRequest, "satellite id must be a positive integer")
		return
	}
	obj, found := s.deps.Catalog.Get(id)
	if !found {
		fail(w, http.StatusNotFound, kindNotFound, "unknown satellite")
		return
	}

	detail := satelliteDetail{
		satelliteSummary: summarize(obj),
		Eccentricity:     obj.TLE.Eccentricity,
		RAANDeg:          obj.TLE.RAAN * rad2deg,
		MeanMotion:       obj.TLE.MeanMotion,
		BStar:            obj.TLE.BStar,
		DeepSpace:        obj.TLE.DeepSpace(),
		Superseded:       obj.Superseded,
		Meta:             obj.Meta,
	}

	sv, err := s.deps.Propagator.StateAt(id, time.Now().UTC())
	if err != nil {
		// Element sets can decay or blow up mid-window; the orbital facts
		// are still worth returning.
		detail.PropErr = err.Error()
	} else {
		gt := toGroundTrack(sv)
		detail.Position = &gt
		detail.SpeedKmS = math.Sqrt(sv.Vel.X*sv.Vel.X + sv.Vel.Y*sv.Vel.Y + sv.Vel.Z*sv.Vel.Z)
	}
	ok(w, detail)
}

type positionEntry struct {
	NoradID int    `json:"norad_id"`
	Name    string `json:"name,omitempty"`
	groundTrack
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit", 0)
	if !okLimit || limit < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
		return
	}

	snap, err := s.deps.Propagator.SnapshotAt(r.Context(), time.Now().UTC())
	if err != nil {
		fail(w, http.StatusInternalServerError, kindInternal, "propagating catalog: "+err.Error())
		return
	}

	states := snap.States
	if limit > 0 && len(states) > limit {
		states = states[:limit]
	}
	out := make([]positionEntry, 0, len(states))
	for _, sv := range states {
		name := ""
		if obj, found := s.deps.Catalog.Get(sv.NoradID); found {
			name = obj.TLE.Name
		}
		out = append(out, positionEntry{NoradID: sv.NoradID, Name: name, groundTrack: toGroundTrack(sv)})
	}
	ok(w, map[string]any{
		"at":        snap.At,
		"positions": out,
		"failed":    snap.Failed,
	})
}

// orbitPathSamples is how many points one orbital period is divided into.
const orbitPathSamples = 120

type pathPoint struct {
	LatDeg float64   `json:"lat_deg"`
	LonDeg float64   `json:"lon_deg"`
	AltKm  float64   `json:"alt_km"`
	At     time.Time `json:"at"`
}

func (s *Server) handleOrbit(w http.ResponseWriter, r *http.Request) {
	id, okID := pathID(r, "id")
	if !okID {
		fail(w, http.StatusBadRequest, kindBadRequest, "satellite id must be a positive integer")
		return
	}
	obj, found := s.deps.Catalog.Get(id)
	if !found {
		fail(w, http.StatusNotFound, kindNotFound, "unknown satellite")
		return
	}

	period := obj.TLE.PeriodMinutes()
	if math.IsInf(period, 1) {
		fail(w, http.StatusBadRequest, kindBadRequest, "object has no usable mean motion")
		return
	}

	// One full period from the top of the current minute, so repeated
	// requests within the same minute share a cache entry.
	start := time.Now().UTC().Truncate(time.Minute)
	span := time.Duration(period * float64(time.Minute))
	step := span / orbitPathSamples

	key := cache.Key("orbit", s.deps.Catalog.Revision(), id, start.Unix())
	if points, hit := s.orbitCache.Get(key); hit {
		ok(w, map[string]any{"norad_id": id, "period_min": period, "path": points})
		return
	}

	states, err := s.deps.Propagator.Path(r.Context(), id, start, span, step)
	if err != nil {
		fail(w, http.StatusInternalServerError, kindInternal, "propagating orbit: "+err.Error())
		return
	}
	points := make([]pathPoint, 0, len(states))
	for _, sv := range states {
		gt := toGroundTrack(sv)
		points = append(points, pathPoint{LatDeg: gt.LatDeg, LonDeg: gt.LonDeg, AltKm: gt.AltKm, At: gt.At})
	}
	s.orbitCache.Add(key, points)
	ok(w, map[string]any{"norad_id": id, "period_min": period, "path": points})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		fail(w, http.StatusBadRequest, kindBadRequest, "q is required")
		return
	}
	limit, okLimit := queryInt(r, "limit", 20)
	if !okLimit || limit < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
		return
	}

	matches := s.deps.Catalog.SearchByName(q, limit)
	out := make([]satelliteSummary, 0, len(matches))
	for _, obj := range matches {
		out = append(out, summarize(obj))
	}
	ok(w, map[string]any{"query": q, "satellites": out})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Engine.RefreshTLE(r.Context())
	switch {
	case errors.Is(err, engine.ErrRefreshInFlight):
		fail(w, http.StatusConflict, kindRefreshInFlight, err.Error())
	case err != nil:
		fail(w, http.StatusBadGateway, kindIngestFailed, err.Error())
	default:
		ok(w, res)
	}
}
