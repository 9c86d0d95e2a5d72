package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid parameters, km.
const (
	WGS84A  = 6378.137              // semi-major axis
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Geodetic holds a geodetic position: latitude and longitude in radians,
// altitude above the WGS-84 ellipsoid in km.
type Geodetic struct {
	Lat float64
	Lon float64
	Alt float64
}

// LatDeg returns latitude in degrees.
func (g Geodetic) LatDeg() float64 { return g.Lat / deg2rad }

// LonDeg returns longitude in degrees.
func (g Geodetic) LonDeg() float64 { return g.Lon / deg2rad }

// ECEFToGeodetic converts an ECEF position (km) to geodetic coordinates using
// the iterated Bowring formula. Iterates until successive latitudes agree to
// 1e-9 rad or 6 iterations, whichever comes first.
func ECEFToGeodetic(pos r3.Vec) Geodetic {
	lon := math.Atan2(pos.Y, pos.X)
	p := math.Hypot(pos.X, pos.Y)

	lat := math.Atan2(pos.Z, p*(1-wgs84E2))
	for i := 0; i < 6; i++ {
		sinLat := math.Sin(lat)
		N := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(pos.Z+wgs84E2*N*sinLat, p)
		done := math.Abs(next-lat) < 1e-9
		lat = next
		if done {
			break
		}
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	N := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - N
	} else {
		alt = math.Abs(pos.Z)/math.Abs(sinLat) - N*(1-wgs84E2)
	}

	return Geodetic{Lat: lat, Lon: lon, Alt: alt}
}

// GeodeticToECEF converts geodetic coordinates to an ECEF position in km.
func GeodeticToECEF(g Geodetic) r3.Vec {
	sinLat := math.Sin(g.Lat)
	cosLat := math.Cos(g.Lat)

	// Radius of curvature in the prime vertical.
	N := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return r3.Vec{
		X: (N + g.Alt) * cosLat * math.Cos(g.Lon),
		Y: (N + g.Alt) * cosLat * math.Sin(g.Lon),
		Z: (N*(1-wgs84E2) + g.Alt) * sinLat,
	}
}

// SubPoint returns the geodetic point directly beneath a TEME position at the
// given GMST angle: the satellite ground-track sample.
func SubPoint(posTEME r3.Vec, gmst float64) Geodetic {
	ecef := rotZ(posTEME, gmst)
	return ECEFToGeodetic(ecef)
}
