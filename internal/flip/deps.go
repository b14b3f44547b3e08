package flip

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"flipmarket/internal/flip/catalog"
)

// Logger provides minimal logging required by the Flip module.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// FlipDeps groups external dependencies needed by the Flip module.
// DB, RDB and JS are optional; each enables one commit sink.
type FlipDeps struct {
	DB         *sql.DB
	DBDriver   string
	RDB        *redis.Client
	JS         jetstream.JetStream
	Logger     Logger
	Config     FlipConfig
	HTTPClient *http.Client
	Catalog    *catalog.Catalog
	module     *moduleState
}

// Validate ensures required dependencies are provided.
func (d *FlipDeps) Validate() error {
	if d.Logger == nil {
		return errors.New("flip deps: Logger is required")
	}
	if d.Config.PricingURL == "" {
		return errors.New("flip deps: Config.PricingURL is required")
	}
	if d.DB != nil && d.DBDriver == "" {
		return errors.New("flip deps: DBDriver is required with DB")
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: d.Config.PricingTimeout}
	}
	return nil
}
