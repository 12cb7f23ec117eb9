// Package geoip resolves client IPs to ISO country codes for event
// enrichment. Lookups are best effort: a missing database or unknown IP
// yields an empty country rather than an error.
package geoip

import (
	"encoding/json"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// Resolver provides country lookup using a MaxMind DB or a JSON fallback.
type Resolver struct {
	db       *geoip2.Reader
	fallback []record
}

type record struct {
	net     *net.IPNet
	country string
}

// Open opens the GeoIP2 database located at path. If the file is not a
// MaxMind database it is retried as a JSON array of {net, country} entries,
// which keeps local development working without a licensed database.
func Open(path string) (*Resolver, error) {
	r := &Resolver{}
	db, err := geoip2.Open(path)
	if err == nil {
		r.db = db
		return r, nil
	}

	data, jerr := os.ReadFile(path)
	if jerr != nil {
		return nil, err
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if jerr = json.Unmarshal(data, &entries); jerr != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			r.fallback = append(r.fallback, record{net: n, country: e.Country})
		}
	}
	return r, nil
}

// Country returns the ISO country code for the given IP. If the IP is not
// found or the resolver hasn't been initialised, an empty string is returned.
func (r *Resolver) Country(ip net.IP) string {
	if r == nil || ip == nil {
		return ""
	}
	if r.db != nil {
		rec, err := r.db.Country(ip)
		if err == nil {
			return rec.Country.IsoCode
		}
	}
	for _, f := range r.fallback {
		if f.net.Contains(ip) {
			return f.country
		}
	}
	return ""
}

// Close releases resources associated with the database.
func (r *Resolver) Close() error {
	if r != nil && r.db != nil {
		return r.db.Close()
	}
	return nil
}
