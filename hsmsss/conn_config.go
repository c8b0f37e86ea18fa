package hsmsss

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/justinfuerth/hsms/hsms"
	"github.com/justinfuerth/hsms/logger"
)

// ConnectionConfig represents the configuration parameters for an HSMS-SS (Single Session) connection.
type ConnectionConfig struct {
	mu sync.RWMutex

	// host specifies the host of the remote HSMS-SS device in active mode, or the address to
	// listen on in passive mode.
	host string

	// port specifies the TCP port number for the HSMS-SS connection.
	port int

	// deviceID is the session id carried in the header of select.req, deselect.req and separate.req.
	// Defaults to 0.
	deviceID uint16

	// isActive indicates whether the connection should be established in active (true) or passive (false) mode.
	// Defaults to true (active mode).
	isActive bool

	// autoLinktest indicates whether to send periodic linktest requests automatically to the remote HSMS device.
	// This helps to ensure that the connection remains active and to detect potential communication issues.
	// Defaults to true.
	autoLinktest bool

	// timers holds T3, T5, T6, T7, T8 and the linktest interval.
	// See hsms.DefaultTimers for the defaults.
	timers hsms.Timers

	// connectRemoteTimeout defines the timeout for establishing a connection in active mode. It should be between 10ms and 30 seconds.
	// Defaults to 3 seconds.
	//
	// This field is only relevant for active mode.
	connectRemoteTimeout time.Duration

	// closeConnTimeout bounds the graceful teardown in Stop. It should be between 10ms and 30 seconds.
	// Defaults to 3 seconds.
	closeConnTimeout time.Duration

	// senderQueueSize defines the size of the sender queue, which buffers messages before sending them
	// to the remote HSMS device.
	//
	// Defaults to 10.
	senderQueueSize int

	// eventQueueSize defines the buffer size of the channel returned by Connection.Events.
	// Events beyond it wait in an unbounded queue, so a slow consumer never blocks the connection.
	//
	// Defaults to 64.
	eventQueueSize int

	// logger provides a logger instance for logging HSMS-related events and errors.
	logger logger.Logger
}

// NewConnectionConfig creates a new HSMS-SS connection configuration with the given host, port number, and optional functional options.
//
// It initializes a ConnectionConfig struct with default values and then applies the provided options to customize the configuration.
//
// The host parameter specifies the host of the remote HSMS device, or the local address to listen on in passive mode.
// The port parameter specifies the TCP port number for the HSMS connection.
//
// The opts parameter is a variadic argument that accepts a list of ConnOption functions to customize the configuration.
// See the documentation for ConnOption and the various WithXXX functions for available configuration options.
//
// Returns a pointer to the initialized ConnectionConfig and an error if any occurred during the configuration process.
func NewConnectionConfig(host string, port int, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		isActive:             true,
		autoLinktest:         true,
		timers:               hsms.DefaultTimers(),
		connectRemoteTimeout: 3 * time.Second,
		closeConnTimeout:     3 * time.Second,
		senderQueueSize:      10,
		eventQueueSize:       64,
		logger:               logger.GetLogger(),
	}

	if err := withRemoteHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	if err := withPort(port).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.autoLinktest && cfg.timers.LinkTest >= cfg.timers.T8 {
		cfg.logger.Warn("linktest interval is not shorter than T8, an idle link will hit T8",
			"linktest", cfg.timers.LinkTest, "t8", cfg.timers.T8)
	}

	return cfg, nil
}

// Host returns the remote host in active mode, or the listen address in passive mode.
func (cfg *ConnectionConfig) Host() string { return cfg.host }

// Port returns the TCP port.
func (cfg *ConnectionConfig) Port() int { return cfg.port }

// Address returns host:port.
func (cfg *ConnectionConfig) Address() string {
	return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
}

// DeviceID returns the session id used in control messages.
func (cfg *ConnectionConfig) DeviceID() uint16 { return cfg.deviceID }

// IsActive reports whether the connection runs in active mode.
func (cfg *ConnectionConfig) IsActive() bool { return cfg.isActive }

func (cfg *ConnectionConfig) AutoLinktest() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.autoLinktest
}

func (cfg *ConnectionConfig) LinktestInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers.LinkTest
}

// Timers returns a copy of the current timer settings.
func (cfg *ConnectionConfig) Timers() hsms.Timers {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers
}

func (cfg *ConnectionConfig) T3Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers.T3
}

func (cfg *ConnectionConfig) T5Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers.T5
}

func (cfg *ConnectionConfig) T6Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers.T6
}

func (cfg *ConnectionConfig) T7Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers.T7
}

func (cfg *ConnectionConfig) T8Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timers.T8
}

func (cfg *ConnectionConfig) ConnectRemoteTimeout() time.Duration { return cfg.connectRemoteTimeout }

func (cfg *ConnectionConfig) CloseConnTimeout() time.Duration { return cfg.closeConnTimeout }

func (cfg *ConnectionConfig) SenderQueueSize() int { return cfg.senderQueueSize }

func (cfg *ConnectionConfig) EventQueueSize() int { return cfg.eventQueueSize }

func (cfg *ConnectionConfig) Logger() logger.Logger { return cfg.logger }

// ConnOption represents a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc struct {
	name      string
	runtime   bool
	applyFunc func(*ConnectionConfig) error
}

func (c *connOptFunc) apply(cfg *ConnectionConfig) error { return c.applyFunc(cfg) }

func newConnOptFunc(name string, runtime bool, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{
		name:      name,
		runtime:   runtime,
		applyFunc: f,
	}
}

// withRemoteHost sets the host for the HSMS-SS connection.
// It returns a ConnOption that validates the host updates the configuration.
// An error is returned if the configuration is nil.
func withRemoteHost(host string) ConnOption {
	return newConnOptFunc("withRemoteHost", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		// Check if it's a valid IP address
		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		// If not an IP, check if it's a valid domain name
		host = strings.TrimPrefix(host, ".")
		host = strings.TrimSuffix(host, ".")
		if host == "" {
			return errors.New("invalid host")
		}
		if _, err := net.LookupHost(host); err == nil {
			cfg.host = host
			return nil
		}

		return errors.New("invalid host")
	})
}

// withPort sets the TCP port number for the HSMS-SS connection.
// It returns a ConnOption that validates the port number and updates the configuration.
// An error is returned if the port number is out of the valid range (1-65535) or if the configuration is nil.
func withPort(port int) ConnOption {
	return newConnOptFunc("withPort", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if port < 1 || port > 65535 {
			return errors.New("port is out of range [1, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithDeviceID sets the session id carried by select.req, deselect.req and separate.req.
//
// The default value is 0.
//
// This option can't be changed at runtime.
func WithDeviceID(id uint16) ConnOption {
	return newConnOptFunc("WithDeviceID", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		cfg.deviceID = id

		return nil
	})
}

// WithActive sets the connection mode to active.
// It returns a ConnOption that updates the configuration to indicate an active connection.
// An error is returned if the configuration is nil.
//
// The default mode is active.
//
// This option can't be changed at runtime.
func WithActive() ConnOption {
	return newConnOptFunc("WithActive", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		cfg.isActive = true

		return nil
	})
}

// WithPassive sets the connection mode to passive.
// It returns a ConnOption that updates the configuration to indicate a passive connection.
// An error is returned if the configuration is nil.
//
// The default mode is active.
//
// This option can't be changed at runtime.
func WithPassive() ConnOption {
	return newConnOptFunc("WithPassive", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		cfg.isActive = false

		return nil
	})
}

// WithAutoLinktest enables or disables the automatic periodic linktest mechanism.
//
// When enabled (val = true), the HSMS connection will automatically send linktest requests to the
// remote device at the interval specified by WithLinktestInterval. This helps to ensure that the
// connection remains active and to detect potential communication issues.
//
// When disabled (val = false), no automatic linktest requests will be sent.
//
// An error is returned if the provided ConnectionConfig is nil.
//
// The default value is true.
//
// This option can be changed at runtime. It takes effect on the next selection.
func WithAutoLinktest(val bool) ConnOption {
	return newConnOptFunc("WithAutoLinktest", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		cfg.autoLinktest = val

		return nil
	})
}

// WithLinktestInterval sets the interval between automatic periodic linktest requests.
//
// This setting has no effect if autoLinktest is disabled by WithAutoLinktest(false).
//
// The interval must be within the range of 10ms to 1 hour.
// An error is returned if the interval is invalid or if the provided ConnectionConfig is nil.
//
// The default value is 10 seconds.
//
// This option can be changed at runtime. It takes effect on the next selection.
func WithLinktestInterval(interval time.Duration) ConnOption {
	return newConnOptFunc("WithLinktestInterval", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := hsms.ValidateTimer("linktest", interval, hsms.MaxLinktestTimeout); err != nil {
			return err
		}

		cfg.timers.LinkTest = interval

		return nil
	})
}

// WithTimers sets T3, T5, T6, T7, T8 and the linktest interval at once.
//
// Every duration is validated with hsms.Timers.Validate.
//
// This option can be changed at runtime.
func WithTimers(timers hsms.Timers) ConnOption {
	return newConnOptFunc("WithTimers", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := timers.Validate(); err != nil {
			return err
		}

		cfg.timers = timers

		return nil
	})
}

// WithT3Timeout sets the reply timeout (T3), the time to wait for the reply of a primary message.
//
// The timeout must be within the range of 10ms to 120 seconds.
//
// The default value is 45 seconds.
//
// This option can be changed at runtime.
func WithT3Timeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithT3Timeout", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := hsms.ValidateTimer("t3", val, hsms.MaxT3Timeout); err != nil {
			return err
		}

		cfg.timers.T3 = val

		return nil
	})
}

// WithT5Timeout sets the connect separation timeout (T5), the delay between two connect attempts
// in active mode.
//
// The timeout must be within the range of 10ms to 240 seconds.
//
// The default value is 10 seconds.
//
// This option can be changed at runtime.
func WithT5Timeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithT5Timeout", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := hsms.ValidateTimer("t5", val, hsms.MaxT5Timeout); err != nil {
			return err
		}

		cfg.timers.T5 = val

		return nil
	})
}

// WithT6Timeout sets the control transaction timeout (T6), the time to wait for linktest.rsp.
//
// The timeout must be within the range of 10ms to 240 seconds.
//
// The default value is 5 seconds.
//
// This option can be changed at runtime.
func WithT6Timeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithT6Timeout", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := hsms.ValidateTimer("t6", val, hsms.MaxT6Timeout); err != nil {
			return err
		}

		cfg.timers.T6 = val

		return nil
	})
}

// WithT7Timeout sets the not selected timeout (T7), the time a TCP connection may stay unselected.
//
// The timeout must be within the range of 10ms to 240 seconds.
//
// The default value is 10 seconds.
//
// This option can be changed at runtime.
func WithT7Timeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithT7Timeout", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := hsms.ValidateTimer("t7", val, hsms.MaxT7Timeout); err != nil {
			return err
		}

		cfg.timers.T7 = val

		return nil
	})
}

// WithT8Timeout sets the network inactivity timeout (T8). The connection drops when no byte
// arrives for T8.
//
// The timeout must be within the range of 10ms to 120 seconds.
//
// The default value is 20 seconds.
//
// This option can be changed at runtime. It takes effect on the next connection.
func WithT8Timeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithT8Timeout", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if err := hsms.ValidateTimer("t8", val, hsms.MaxT8Timeout); err != nil {
			return err
		}

		cfg.timers.T8 = val

		return nil
	})
}

// WithConnectRemoteTimeout sets the timeout of a single connect attempt in active mode.
//
// The timeout must be within the range of 10ms to 30 seconds.
//
// The default value is 3 seconds.
//
// This option can't be changed at runtime.
func WithConnectRemoteTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithConnectRemoteTimeout", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if val < hsms.MinTimeout || val > 30*time.Second {
			return fmt.Errorf("connect remote timeout %v out of range [%v, 30s]", val, hsms.MinTimeout)
		}

		cfg.connectRemoteTimeout = val

		return nil
	})
}

// WithCloseConnTimeout bounds the graceful teardown performed by Connection.Stop.
//
// The timeout must be within the range of 10ms to 30 seconds.
//
// The default value is 3 seconds.
//
// This option can't be changed at runtime.
func WithCloseConnTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithCloseConnTimeout", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if val < hsms.MinTimeout || val > 30*time.Second {
			return fmt.Errorf("close connection timeout %v out of range [%v, 30s]", val, hsms.MinTimeout)
		}

		cfg.closeConnTimeout = val

		return nil
	})
}

// WithSenderQueueSize sets the size of the sender queue, which buffers messages before sending them
// to the remote HSMS device.
//
// This option allows you to control the backpressure level for unsent messages.
// A larger queue size can accommodate bursts of messages but might consume more memory.
//
// The queue size must be within the range of 1 to 1000.
// An error is returned if the queue size is invalid or if the provided ConnectionConfig is nil.
//
// The default value is 10.
//
// This option can't be changed at runtime.
func WithSenderQueueSize(size int) ConnOption {
	return newConnOptFunc("WithSenderQueueSize", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if size < 1 || size > 1000 {
			return errors.New("the sender queue size out of range [1, 1000]")
		}

		cfg.senderQueueSize = size

		return nil
	})
}

// WithEventQueueSize sets the buffer size of the event channel returned by Connection.Events.
//
// The queue size must be within the range of 1 to 10000.
//
// The default value is 64.
//
// This option can't be changed at runtime.
func WithEventQueueSize(size int) ConnOption {
	return newConnOptFunc("WithEventQueueSize", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if size < 1 || size > 10000 {
			return errors.New("the event queue size out of range [1, 10000]")
		}

		cfg.eventQueueSize = size

		return nil
	})
}

// WithLogger sets the logger for the HSMS-SS connection.
// It returns a ConnOption that updates the configuration with the provided logger.
// An error is returned if the configuration is nil.
//
// The default logger is the global logger instance.
//
// This option can't be changed at runtime.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}
		if l == nil {
			return errors.New("logger is nil")
		}

		cfg.logger = l

		return nil
	})
}
