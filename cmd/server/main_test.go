package main

import (
	"testing"
	"time"

	"github.com/JonMunkholm/localfinder/internal/config"
	"github.com/JonMunkholm/localfinder/internal/geo"
)

func TestNewLocator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.GeoConfig
		want    string
		wantErr bool
	}{
		{name: "disabled", cfg: config.GeoConfig{FixedPosition: "1,2"}, want: "none"},
		{name: "http lookup", cfg: config.GeoConfig{Enabled: true, URL: "http://geo.local/json", Timeout: time.Second}, want: "http"},
		{name: "fixed position", cfg: config.GeoConfig{Enabled: true, URL: "http://geo.local/json", FixedPosition: "-23.5,-46.6"}, want: "fixed"},
		{name: "bad fixed position", cfg: config.GeoConfig{Enabled: true, FixedPosition: "north"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := newLocator(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newLocator error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got := "none"
			switch l := loc.(type) {
			case nil:
			case *geo.HTTPLocator:
				got = "http"
			case geo.Fixed:
				got = "fixed"
				if l.Lat != -23.5 || l.Lng != -46.6 {
					t.Errorf("fixed = %+v", l)
				}
			default:
				t.Fatalf("unexpected locator %T", loc)
			}
			if got != tt.want {
				t.Errorf("locator = %s, want %s", got, tt.want)
			}
		})
	}
}
