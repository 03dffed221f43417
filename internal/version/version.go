package version

import (
	"runtime"
	rdebug "runtime/debug"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GitCommit   string
	GitBranch   string
	GitSummary  string
	BuildDate   string
	AppVersion  string
	PgxVersion  = depVersion("jackc/pgx")
	NatsVersion = depVersion("nats-io/nats.go")
	GoVersion   = runtime.Version()
)

type Version struct {
	GitCommit   string `json:"git_commit"`
	GitBranch   string `json:"git_branch"`
	GitSummary  string `json:"git_summary"`
	BuildDate   string `json:"build_date"`
	AppVersion  string `json:"app_version"`
	GoVersion   string `json:"go_version"`
	PgxVersion  string `json:"pgx_version"`
	NatsVersion string `json:"nats_version"`
}

func Current() Version {
	return Version{
		GitBranch:   GitBranch,
		GitCommit:   GitCommit,
		GitSummary:  GitSummary,
		BuildDate:   BuildDate,
		AppVersion:  AppVersion,
		GoVersion:   GoVersion,
		PgxVersion:  PgxVersion,
		NatsVersion: NatsVersion,
	}
}

func ExportBuildInfoMetric() {
	buildInfo := promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "printwatch_build_info",
			Help: "A metric with a constant '1' value, labeled by branch, commit, summary, builddate, version, Go version from which printwatch was built.",
		},
		[]string{"branch", "commit", "summary", "builddate", "version", "goversion"},
	)

	buildInfo.WithLabelValues(GitBranch, GitCommit, GitSummary, BuildDate, AppVersion, GoVersion).Set(1)
}

// depVersion returns the version of the first module dependency whose path contains name.
func depVersion(name string) string {
	buildInfo, ok := rdebug.ReadBuildInfo()
	if !ok {
		return ""
	}

	for _, d := range buildInfo.Deps {
		if strings.Contains(d.Path, name) {
			return d.Version
		}
	}

	return ""
}
