// Command odo-device runs the device side of the onboarding exchange.
//
// The device connects to a manufacturer service (given explicitly or found
// via mDNS), proves group membership with its provisioned attestation key,
// and persists the credential it receives.
//
// Usage:
//
//	odo-device [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-host string        Manufacturer service host (mDNS discovery if empty)
//	-port int           Manufacturer service port (default 8040)
//	-serial string      Device serial number
//	-model string       Device model
//	-group-key string   Group public key file
//	-member-key string  Member private key file (full or compressed)
//	-sig-rl string      Signature revocation list file
//	-state string       State file path (default "odo-device.json")
//	-strategy string    Signing strategy: precomputed, fresh (default "precomputed")
//	-insecure           Skip TLS certificate verification
//	-retries int        Session retry attempts (default 3)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-log-file string    Protocol event log file (.olog)
//
// Examples:
//
//	# Onboard against a known service
//	odo-device -host mfr.example.com -serial SN-0001 -model sensor-mk3 \
//	    -group-key group.pub -member-key member.key
//
//	# Discover the service over mDNS
//	odo-device -serial SN-0001 -model sensor-mk3 \
//	    -group-key group.pub -member-key member.key -insecure
package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odo-protocol/odo-go/pkg/attestation"
	"github.com/odo-protocol/odo-go/pkg/connection"
	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/device"
	"github.com/odo-protocol/odo-go/pkg/discovery"
	"github.com/odo-protocol/odo-go/pkg/log"
	"github.com/odo-protocol/odo-go/pkg/onboarding"
	"github.com/odo-protocol/odo-go/pkg/persistence"
	"github.com/odo-protocol/odo-go/pkg/transport"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

// Config holds the device configuration. YAML fields mirror the flags.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Serial       string `yaml:"serial"`
	Model        string `yaml:"model"`
	GroupKeyFile string `yaml:"groupKeyFile"`
	MemberKey    string `yaml:"memberKeyFile"`
	SigRLFile    string `yaml:"sigRLFile"`
	StateFile    string `yaml:"stateFile"`
	Strategy     string `yaml:"strategy"`
	Insecure     bool   `yaml:"insecure"`
	Retries      int    `yaml:"retries"`
	LogLevel     string `yaml:"logLevel"`
	LogFile      string `yaml:"logFile"`
}

var config = Config{
	Port:      transport.DefaultPort,
	StateFile: "odo-device.json",
	Strategy:  "precomputed",
	Retries:   3,
	LogLevel:  "info",
}

func init() {
	flag.StringVar(&config.Host, "host", config.Host, "Manufacturer service host (mDNS discovery if empty)")
	flag.IntVar(&config.Port, "port", config.Port, "Manufacturer service port")
	flag.StringVar(&config.Serial, "serial", config.Serial, "Device serial number")
	flag.StringVar(&config.Model, "model", config.Model, "Device model")
	flag.StringVar(&config.GroupKeyFile, "group-key", config.GroupKeyFile, "Group public key file")
	flag.StringVar(&config.MemberKey, "member-key", config.MemberKey, "Member private key file (full or compressed)")
	flag.StringVar(&config.SigRLFile, "sig-rl", config.SigRLFile, "Signature revocation list file")
	flag.StringVar(&config.StateFile, "state", config.StateFile, "State file path")
	flag.StringVar(&config.Strategy, "strategy", config.Strategy, "Signing strategy: precomputed, fresh")
	flag.BoolVar(&config.Insecure, "insecure", config.Insecure, "Skip TLS certificate verification")
	flag.IntVar(&config.Retries, "retries", config.Retries, "Session retry attempts")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFile, "log-file", config.LogFile, "Protocol event log file (.olog)")
}

func main() {
	configFile := flag.String("config", "", "Configuration file path (YAML)")
	flag.Parse()

	if *configFile != "" {
		if err := loadConfigFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(config.LogLevel),
	}))

	if err := run(logger); err != nil {
		logger.Error("onboarding failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	if config.Serial == "" || config.Model == "" {
		return fmt.Errorf("serial and model are required")
	}
	if config.GroupKeyFile == "" || config.MemberKey == "" {
		return fmt.Errorf("group-key and member-key are required")
	}

	eventLogger, closeLogs, err := buildEventLogger(logger)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := persistence.NewCredentialStore(config.StateFile)
	state, err := store.Load()
	if err != nil {
		return err
	}
	if state != nil && state.Credential != nil {
		logger.Info("device already onboarded", "state", config.StateFile)
		return nil
	}

	backend, err := buildAttestation(state)
	if err != nil {
		return err
	}
	defer backend.Close()

	host, port, err := resolveService(ctx, logger)
	if err != nil {
		return err
	}
	logger.Info("onboarding", "host", host, "port", port, "serial", config.Serial)

	sigRL, err := readOptionalFile(config.SigRLFile)
	if err != nil {
		return err
	}

	cred, err := runSessions(ctx, logger, eventLogger, backend, sigRL, host, port)
	if err != nil {
		return err
	}
	defer cred.Zero()

	newState := &persistence.DeviceState{Credential: cred}
	if config.Strategy == "precomputed" {
		if newState.Precomp, err = backend.WritePrecomp(); err != nil {
			return err
		}
	}
	if err := store.Save(newState); err != nil {
		return err
	}

	logger.Info("onboarding complete", "state", config.StateFile)
	return nil
}

// runSessions attempts the exchange with backoff between failed sessions.
// Each attempt uses a fresh connection and session.
func runSessions(ctx context.Context, logger *slog.Logger, eventLogger log.Logger,
	backend *attestation.Backend, sigRL []byte, host string, port uint16) (*onboarding.DeviceCredential, error) {

	tlsConfig, err := transport.NewClientTLSConfig(&transport.TLSConfig{
		ServerName:         host,
		InsecureSkipVerify: config.Insecure,
	})
	if err != nil {
		return nil, err
	}

	identity := &device.StaticIdentity{Serial: config.Serial, ModelName: config.Model}
	backoff := connection.NewBackoff()

	var lastErr error
	for attempt := 0; attempt <= config.Retries; attempt++ {
		if attempt > 0 {
			delay := backoff.Next()
			logger.Warn("session failed, retrying", "err", lastErr, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		cred, err := runSession(ctx, eventLogger, backend, sigRL, identity, tlsConfig, host, port)
		if err == nil {
			return cred, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func runSession(ctx context.Context, eventLogger log.Logger, backend *attestation.Backend,
	sigRL []byte, identity device.Identity, tlsConfig *tls.Config, host string, port uint16) (*onboarding.DeviceCredential, error) {

	conn, err := transport.Connect(ctx, host, port, transport.Config{
		TLSConfig: tlsConfig,
		Logger:    eventLogger,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	dev, err := onboarding.NewDevice(conn, onboarding.DeviceConfig{
		Identity:    identity,
		DeviceKey:   deviceKey(),
		Attestation: backend,
		Provider:    crypto.NewRSAProvider(rand.Reader),
		SigRL:       sigRL,
		Logger:      eventLogger,
	})
	if err != nil {
		return nil, err
	}

	return dev.Run(ctx)
}

// deviceKey returns the public key announced in AppStart. Reference devices
// derive it from the serial; real devices use provisioned key material.
func deviceKey() wire.PublicKey {
	modulus := make([]byte, 128)
	copy(modulus, config.Serial)
	modulus[0] |= 0x80
	return wire.PublicKey{
		Algorithm: wire.KeyAlgorithmRSA,
		Encoding:  wire.KeyEncodingModExp,
		Modulus:   modulus,
		Exponent:  []byte{1, 0, 1},
	}
}

func buildAttestation(state *persistence.DeviceState) (*attestation.Backend, error) {
	var strategy attestation.Strategy
	switch config.Strategy {
	case "precomputed":
		strategy = attestation.StrategyPrecomputed
	case "fresh":
		strategy = attestation.StrategyFreshPerSign
	default:
		return nil, fmt.Errorf("unknown strategy %q", config.Strategy)
	}

	groupKey, err := os.ReadFile(config.GroupKeyFile)
	if err != nil {
		return nil, err
	}
	memberKey, err := os.ReadFile(config.MemberKey)
	if err != nil {
		return nil, err
	}
	sigRL, err := readOptionalFile(config.SigRLFile)
	if err != nil {
		return nil, err
	}

	var precomp []byte
	if state != nil {
		precomp = state.Precomp
	}

	backend, err := attestation.New(attestation.Config{Strategy: strategy})
	if err != nil {
		return nil, err
	}
	if err := backend.Init(groupKey, memberKey, nil, sigRL, precomp); err != nil {
		return nil, err
	}
	return backend, nil
}

// resolveService returns the configured endpoint, or browses mDNS when no
// host is set.
func resolveService(ctx context.Context, logger *slog.Logger) (string, uint16, error) {
	if config.Host != "" {
		return config.Host, uint16(config.Port), nil
	}

	logger.Info("no host configured, browsing mDNS", "service", discovery.ServiceType)
	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	info, err := browser.Resolve(ctx)
	if err != nil {
		return "", 0, err
	}

	host := info.Host
	if len(info.Addresses) > 0 {
		host = info.Addresses[0]
	}
	logger.Info("discovered service", "instance", info.InstanceName, "host", host, "port", info.Port)
	return host, info.Port, nil
}

func buildEventLogger(logger *slog.Logger) (log.Logger, func(), error) {
	loggers := []log.Logger{log.NewSlogAdapter(logger)}
	closeLogs := func() {}

	if config.LogFile != "" {
		fileLogger, err := log.NewFileLogger(config.LogFile)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fileLogger)
		closeLogs = func() { fileLogger.Close() }
	}
	return log.NewMultiLogger(loggers...), closeLogs, nil
}

func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, &config)
}

func readOptionalFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
