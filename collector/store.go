package collector

import (
	"context"
	"database/sql"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit"
)

const createMeasurementTable = `CREATE TABLE IF NOT EXISTS sensor_measurement (
	id SERIAL PRIMARY KEY,
	channel INTEGER NOT NULL,
	kind TEXT NOT NULL,
	soil_moisture INTEGER,
	nutrient_level INTEGER,
	temperature DOUBLE PRECISION,
	humidity DOUBLE PRECISION,
	state TEXT,
	measured_at TIMESTAMPTZ NOT NULL
)`

const createHistoryTable = `CREATE TABLE IF NOT EXISTS irrigation_history (
	id SERIAL PRIMARY KEY,
	channel INTEGER NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL
)`

const insertRun = `INSERT INTO irrigation_history (channel, start_time, end_time) VALUES ($1, $2, $3)`

const runMeasurement = "irrigation_run"

const insertReading = `INSERT INTO sensor_measurement (channel, kind, soil_moisture, nutrient_level, temperature, humidity, measured_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const insertState = `INSERT INTO sensor_measurement (channel, kind, state, measured_at)
	VALUES ($1, $2, $3, $4)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore appends every measurement to the sensor_measurement table.
type PostgresStore struct {
	db     execer
	closer io.Closer
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "postgres not reachable")
	}

	store := &PostgresStore{db: db, closer: db}
	err = store.migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, createMeasurementTable)
	if err != nil {
		return errors.Wrap(err, "failed to create sensor_measurement table")
	}
	_, err = ps.db.ExecContext(ctx, createHistoryTable)
	if err != nil {
		return errors.Wrap(err, "failed to create irrigation_history table")
	}
	return nil
}

func (ps *PostgresStore) SaveRun(ctx context.Context, run IrrigationRun) error {
	_, err := ps.db.ExecContext(ctx, insertRun, run.Channel, run.Start, run.End)
	if err != nil {
		return errors.Wrap(err, "insert into irrigation_history")
	}
	return nil
}

func (ps *PostgresStore) Save(ctx context.Context, m Measurement) (err error) {
	switch m.Kind {
	case KindReading:
		_, err = ps.db.ExecContext(ctx, insertReading,
			m.Channel, m.Kind, m.Reading.SoilMoisture, m.Reading.NutrientLevel,
			m.Reading.Temperature, m.Reading.Humidity, m.Timestamp)
	case KindState:
		_, err = ps.db.ExecContext(ctx, insertState, m.Channel, m.Kind, m.State, m.Timestamp)
	default:
		return errors.Errorf("unknown measurement kind %q", m.Kind)
	}
	if err != nil {
		err = errors.Wrap(err, "insert into sensor_measurement")
	}
	return
}

func (ps *PostgresStore) Close() error {
	if ps.closer == nil {
		return nil
	}
	return ps.closer.Close()
}

// InfluxStore writes measurements as the same points the station writes itself.
type InfluxStore struct {
	sink    irrigkit.ReportingSink
	points  pointWriter
	station string
	close   func()
}

type pointWriter interface {
	Write(point *write.Point) error
}

func NewInfluxStore(cfg irrigkit.InfluxConfig, threshold int) *InfluxStore {
	sink := irrigkit.NewInfluxSink(cfg, threshold)
	return &InfluxStore{sink: sink, points: sink, station: cfg.Station, close: sink.Close}
}

// SaveRun writes the run at its start time with the duration in seconds.
func (is *InfluxStore) SaveRun(ctx context.Context, run IrrigationRun) error {
	tags := map[string]string{"channel": strconv.Itoa(run.Channel)}
	if len(is.station) > 0 {
		tags["station"] = is.station
	}
	fields := map[string]interface{}{
		"duration": run.Duration().Seconds(),
		"end":      run.End.Unix(),
	}
	err := is.points.Write(influxdb2.NewPoint(runMeasurement, tags, fields, run.Start))
	if err != nil {
		return errors.Wrapf(err, "influx: failed to write irrigation run of channel %d", run.Channel)
	}
	return nil
}

func (is *InfluxStore) Save(ctx context.Context, m Measurement) error {
	switch m.Kind {
	case KindReading:
		return is.sink.ReportReading(m.Reading)
	case KindState:
		return is.sink.ReportState(irrigkit.ChannelState{Channel: m.Channel, Topic: m.Topic, State: m.State})
	}
	return errors.Errorf("unknown measurement kind %q", m.Kind)
}

func (is *InfluxStore) Close() error {
	if is.close != nil {
		is.close()
	}
	return nil
}

// LogStore only prints what was received.
type LogStore struct {
	logger *log.Logger
}

func NewLogStore(w io.Writer) *LogStore {
	return &LogStore{
		logger: log.NewWithOptions(w, log.Options{
			Prefix:          "Measurement: ",
			ReportTimestamp: true,
		}),
	}
}

func (ls *LogStore) Save(ctx context.Context, m Measurement) error {
	switch m.Kind {
	case KindReading:
		ls.logger.Info(m.Topic,
			"soilMoisture", m.Reading.SoilMoisture,
			"nutrientLevel", m.Reading.NutrientLevel,
			"temperature", m.Reading.Temperature,
			"humidity", m.Reading.Humidity,
		)
	case KindState:
		ls.logger.Info(m.Topic, "state", m.State)
	default:
		return errors.Errorf("unknown measurement kind %q", m.Kind)
	}
	return nil
}

func (ls *LogStore) SaveRun(ctx context.Context, run IrrigationRun) error {
	ls.logger.Info("irrigation run", "channel", run.Channel, "start", run.Start, "end", run.End, "duration", run.Duration())
	return nil
}

func (ls *LogStore) Close() error {
	return nil
}
