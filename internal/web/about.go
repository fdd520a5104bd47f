package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"gpsbridge/internal/fix"
)

type LayoutInfo struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type AboutResponse struct {
	Service   string       `json:"service"`
	NowUTC    string       `json:"now_utc"`
	GoVersion string       `json:"go_version"`
	Version   string       `json:"version,omitempty"`
	Commit    string       `json:"commit,omitempty"`
	Dirty     bool         `json:"dirty,omitempty"`
	Layouts   []LayoutInfo `json:"layouts"`
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := AboutResponse{
			Service:   "gpsbridge",
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion: runtime.Version(),
		}
		for _, l := range []fix.Layout{fix.LayoutExtended, fix.LayoutLegacy} {
			resp.Layouts = append(resp.Layouts, LayoutInfo{Name: l.String(), Size: l.Size()})
		}
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			resp.Version = bi.Main.Version
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					resp.Commit = s.Value
				case "vcs.modified":
					resp.Dirty = s.Value == "true"
				}
			}
		}

		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})
}
