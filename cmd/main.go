package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/spatial/featureflag"
	spatialhttp "github.com/aukilabs/spatial/http"
	"github.com/aukilabs/spatial/models"
	"github.com/aukilabs/spatial/modules"
	"github.com/aukilabs/spatial/modules/dagaz"
	"github.com/aukilabs/spatial/modules/odal"
	"github.com/aukilabs/spatial/smoketest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "spatial_info",
		Help:        "Spatial server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr           string        `cli:""        env:"SPATIAL_ADDR"             help:"Listening address for client requests."`
	AdminAddr      string        `cli:""        env:"SPATIAL_ADMIN_ADDR"       help:"Admin listening address."`
	PublicEndpoint string        `cli:""        env:"SPATIAL_PUBLIC_ENDPOINT"  help:"The public endpoint where this server is reachable."`
	ServerID       string        `cli:""        env:"SPATIAL_SERVER_ID"        help:"The id prefixed to session ids."`
	AuthToken      string        `cli:""        env:"SPATIAL_AUTH_TOKEN"       help:"The access token required on session routes. Empty disables authentication."`
	LogLevel       string        `cli:""        env:"SPATIAL_LOG_LEVEL"        help:"Log level (debug|info|warning|error)."`
	LogIndent      bool          `cli:""        env:"SPATIAL_LOG_INDENT"       help:"Indent logs."`
	FrameDuration  time.Duration `cli:",hidden" env:"SPATIAL_FRAME_DURATION"   help:"The duration of a session frame."`
	EntityPadding  float64       `cli:",hidden" env:"SPATIAL_ENTITY_PADDING"   help:"The margin added around entity bounds in the entity index."`
	Events         eventsConfig  `cli:",hidden" env:"-"                        help:"Event pusher configuration."`
	FeatureFlags   []string      `cli:",hidden" env:"SPATIAL_FEATURE_FLAGS"    help:"Comma separated feature flags"`
	Version        bool          `cli:""        env:"-"                        help:"Show version."`
	Help           bool          `cli:""        env:"-"                        help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SPATIAL_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Empty disables event pushing."`
	FlushInterval time.Duration `cli:",hidden" env:"SPATIAL_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SPATIAL_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SPATIAL_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:           ":4000",
		AdminAddr:      ":18190",
		PublicEndpoint: "http://localhost:4000",
		ServerID:       "ted",
		LogLevel:       logs.InfoLevel.String(),
		FrameDuration:  models.DefaultFrameDuration,
		EntityPadding:  0.1,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the spatial server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "spatial",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	sessions := models.SessionStore{
		DiscoveryService: models.StaticDiscoveryService(conf.ServerID),
	}
	defer closeSessions(&sessions)

	api := spatialhttp.API{
		Sessions: &sessions,
		Modules: []modules.Module{
			&dagaz.Module{
				DisableMerge: featureFlags.IsSet(featureflag.FlagDisablePlaneMerge),
			},
			&odal.Module{},
		},
		FeatureFlags: featureFlags,
		SessionConfig: models.SessionConfig{
			FrameDuration: conf.FrameDuration,
			EntityPadding: float32(conf.EntityPadding),
		},
		DispatchFrames: true,
		AuthToken:      conf.AuthToken,
	}

	var service http.ServeMux
	api.Register(&service)
	service.HandleFunc("GET /health", spatialhttp.HandleHealthCheck)
	service.HandleFunc("GET /ready", spatialhttp.HandleReadyCheck(func() bool { return true }))
	service.HandleFunc("GET /version", spatialhttp.HandleVersion(version))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", spatialhttp.HandleHealthCheck)
	admin.HandleFunc("/ready", spatialhttp.HandleReadyCheck(func() bool { return true }))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.Handle("POST /smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Spatial %s", version),
		AuthToken: conf.AuthToken,
		Transport: transport,
	}))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("server_id", conf.ServerID).
		WithTag("frame_duration", conf.FrameDuration).
		WithTag("feature_flags", featureFlags.Strings()).
		Info("starting spatial server")

	spatialhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(
			spatialhttp.HandleWithCORS(&service),
			spatialhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func closeSessions(sessions *models.SessionStore) {
	count := sessions.Count()
	sessions.RemoveAll(context.Background())

	logs.WithTag("sessions", count).Info("sessions closed")
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.ServerID == "" {
		return errors.New("server id is empty")
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.EntityPadding < 0 {
		return errors.New("entity padding must not be negative").
			WithTag("entity_padding", conf.EntityPadding)
	}

	return nil
}
