// Package version хранит сведения о сборке pdv-service.
//
// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/pdv/internal/version.version=v1.0.0 \
//	  -X github.com/vladislavdragonenkov/pdv/internal/version.commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// Service — имя сервиса в логах и /healthz.
const Service = "pdv-service"

const unknown = "unknown"

var (
	version = "dev"
	commit  = unknown
	date    = unknown
)

// Build описывает собранный бинарник.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о сборке. Если commit и date не переданы через
// -ldflags, берём vcs.revision и vcs.time из debug.BuildInfo.
func Current() Build {
	return resolve(Build{Version: version, Commit: commit, Date: date}, debug.ReadBuildInfo)
}

func resolve(b Build, read func() (*debug.BuildInfo, bool)) Build {
	if b.Commit != unknown && b.Date != unknown {
		return b
	}
	info, ok := read()
	if !ok || info == nil {
		return b
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == unknown && s.Value != "":
			b.Commit = s.Value
			if len(b.Commit) > 12 {
				b.Commit = b.Commit[:12]
			}
		case s.Key == "vcs.time" && b.Date == unknown && s.Value != "":
			b.Date = s.Value
		}
	}
	return b
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// Fields — поля для стартовой записи в лог.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"service": Service,
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", Service, b.Version, b.Commit, b.Date)
}
