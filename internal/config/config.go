// typed startup configuration: flag parsing plus validation, in the spirit
// of the options table the server is documented against
package config

import (
	"flag"
	"fmt"
	"log/slog"
)

// Options holds every knob the server, DB pool, and logger need at
// startup.
type Options struct {
	Port     int
	SrcDir   string
	TrigMode int
	TimeoutMS int
	OptLinger bool

	SQLDSN      string
	ConnPoolNum int

	ThreadNum int

	OpenLog      bool
	LogLevel     slog.Level
	LogQueueSize int
	Telemetry    bool
	ServiceName  string
}

// Defaults mirrors the values the original ships with out of the box.
func Defaults() Options {
	return Options{
		Port:         1316,
		SrcDir:       "./resources",
		TrigMode:     3,
		TimeoutMS:    60000,
		OptLinger:    false,
		SQLDSN:       "file:tinyreactor.db",
		ConnPoolNum:  8,
		ThreadNum:    0,
		OpenLog:      true,
		LogLevel:     slog.LevelInfo,
		LogQueueSize: 1024,
		Telemetry:    false,
		ServiceName:  "tinyreactor",
	}
}

// ParseFlags builds an Options from Defaults, overridden by command-line
// flags parsed from args (typically os.Args[1:]).
func ParseFlags(args []string) (Options, error) {
	opt := Defaults()

	fs := flag.NewFlagSet("tinyreactord", flag.ContinueOnError)
	fs.IntVar(&opt.Port, "port", opt.Port, "listening TCP port")
	fs.StringVar(&opt.SrcDir, "src-dir", opt.SrcDir, "static asset root")
	fs.IntVar(&opt.TrigMode, "trig-mode", opt.TrigMode, "0 LT/LT, 1 LT-listen/ET-conn, 2 ET-listen/LT-conn, 3 ET/ET")
	fs.IntVar(&opt.TimeoutMS, "timeout-ms", opt.TimeoutMS, "idle connection timeout in ms; 0 disables")
	fs.BoolVar(&opt.OptLinger, "opt-linger", opt.OptLinger, "SO_LINGER with onoff=1, linger=1")
	fs.StringVar(&opt.SQLDSN, "sql-dsn", opt.SQLDSN, "sqlite DSN for the auth database")
	fs.IntVar(&opt.ConnPoolNum, "conn-pool-num", opt.ConnPoolNum, "pre-opened DB handles")
	fs.IntVar(&opt.ThreadNum, "thread-num", opt.ThreadNum, "worker pool size; <=0 uses NumCPU")
	fs.BoolVar(&opt.OpenLog, "open-log", opt.OpenLog, "enable logging")
	fs.IntVar(&opt.LogQueueSize, "log-queue-size", opt.LogQueueSize, "async log queue capacity")
	fs.BoolVar(&opt.Telemetry, "telemetry", opt.Telemetry, "bridge logs to an OTel LoggerProvider via otelslog")
	fs.StringVar(&opt.ServiceName, "service-name", opt.ServiceName, "service name tag for telemetry export")

	var level string
	fs.StringVar(&level, "log-level", opt.LogLevel.String(), "debug, info, warn, or error")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if err := opt.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return Options{}, fmt.Errorf("config: invalid log level %q: %w", level, err)
	}

	if err := opt.Validate(); err != nil {
		return Options{}, err
	}
	return opt, nil
}

// Validate enforces the invariants the reactor and DB pool assume hold.
func (o Options) Validate() error {
	if o.Port < 1024 || o.Port > 65535 {
		return fmt.Errorf("config: port %d out of range [1024, 65535]", o.Port)
	}
	if o.TrigMode < 0 || o.TrigMode > 3 {
		return fmt.Errorf("config: trig-mode %d out of range [0, 3]", o.TrigMode)
	}
	if o.TimeoutMS < 0 {
		return fmt.Errorf("config: timeout-ms %d must be >= 0", o.TimeoutMS)
	}
	if o.ConnPoolNum <= 0 {
		return fmt.Errorf("config: conn-pool-num %d must be > 0", o.ConnPoolNum)
	}
	if o.LogQueueSize < 0 {
		return fmt.Errorf("config: log-queue-size %d must be >= 0", o.LogQueueSize)
	}
	return nil
}
