package backend

import (
	"fmt"

	"expenses/internal/config"
)

// FromAppConfig picks the storage and event settings out of the
// application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, fmt.Errorf("backend: nil app config")
	}
	cfg := Config{
		Type:         BackendType(app.DataBackend),
		DSN:          app.DSN(),
		AMQPURL:      app.AMQPURL,
		AMQPExchange: app.AMQPExchange,
		AMQPQueue:    app.AMQPQueue,
	}
	if !cfg.Type.IsValid() {
		return Config{}, fmt.Errorf("backend: unknown type %q", app.DataBackend)
	}
	return cfg, nil
}

// Validate checks that the chosen backend has what it needs to open.
func (c Config) Validate() error {
	switch {
	case !c.Type.IsValid():
		return fmt.Errorf("backend: unknown type %q", c.Type)
	case c.Type.IsSQL() && c.DSN == "":
		return fmt.Errorf("backend: %s needs a database path or connection string", c.Type)
	case c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == ""):
		return fmt.Errorf("backend: AMQP exchange and queue are required when AMQP is enabled")
	}
	return nil
}

// BackendTypes lists every supported backend.
func BackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend, MySQLBackend, MemoryBackend}
}

// SQLBackendNames lists the backends that persist to a database.
func SQLBackendNames() []string {
	var out []string
	for _, t := range BackendTypes() {
		if t.IsSQL() {
			out = append(out, t.String())
		}
	}
	return out
}
