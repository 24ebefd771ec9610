// Command odo-manufacturer runs the manufacturer side of the onboarding
// exchange: a TLS service that accepts device sessions, assigns
// credentials, and stores the per-device records used to build ownership
// vouchers.
//
// Usage:
//
//	odo-manufacturer [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-listen string      Listen address (default ":8040")
//	-cert string        TLS certificate file (self-signed if missing)
//	-key string         TLS key file
//	-mfr-key string     Manufacturer RSA key file (generated if missing)
//	-rendezvous string  Comma-separated rendezvous endpoints for devices
//	-records string     Record store path (default "odo-records.json")
//	-advertise          Advertise the service over mDNS (default true)
//	-instance string    mDNS instance name (default "odo-manufacturer")
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-log-file string    Protocol event log file (.olog)
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odo-protocol/odo-go/pkg/cert"
	"github.com/odo-protocol/odo-go/pkg/discovery"
	"github.com/odo-protocol/odo-go/pkg/log"
	"github.com/odo-protocol/odo-go/pkg/onboarding"
	"github.com/odo-protocol/odo-go/pkg/persistence"
	"github.com/odo-protocol/odo-go/pkg/transport"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

// Config holds the service configuration. YAML fields mirror the flags.
type Config struct {
	Listen     string `yaml:"listen"`
	CertFile   string `yaml:"certFile"`
	KeyFile    string `yaml:"keyFile"`
	MfrKeyFile string `yaml:"mfrKeyFile"`
	Rendezvous string `yaml:"rendezvous"`
	Records    string `yaml:"records"`
	Advertise  bool   `yaml:"advertise"`
	Instance   string `yaml:"instance"`
	LogLevel   string `yaml:"logLevel"`
	LogFile    string `yaml:"logFile"`
}

var config = Config{
	Listen:    fmt.Sprintf(":%d", transport.DefaultPort),
	Records:   "odo-records.json",
	Advertise: true,
	Instance:  "odo-manufacturer",
	LogLevel:  "info",
}

func init() {
	flag.StringVar(&config.Listen, "listen", config.Listen, "Listen address")
	flag.StringVar(&config.CertFile, "cert", config.CertFile, "TLS certificate file (self-signed if missing)")
	flag.StringVar(&config.KeyFile, "key", config.KeyFile, "TLS key file")
	flag.StringVar(&config.MfrKeyFile, "mfr-key", config.MfrKeyFile, "Manufacturer RSA key file (generated if missing)")
	flag.StringVar(&config.Rendezvous, "rendezvous", config.Rendezvous, "Comma-separated rendezvous endpoints")
	flag.StringVar(&config.Records, "records", config.Records, "Record store path")
	flag.BoolVar(&config.Advertise, "advertise", config.Advertise, "Advertise the service over mDNS")
	flag.StringVar(&config.Instance, "instance", config.Instance, "mDNS instance name")
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
		logger.Error("service failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	eventLogger, closeLogs, err := buildEventLogger(logger)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mfrKey, err := loadOrGenerateKey(logger)
	if err != nil {
		return err
	}

	mfr, err := onboarding.NewManufacturer(onboarding.ManufacturerConfig{
		Key: wire.PublicKey{
			Algorithm: wire.KeyAlgorithmRSA,
			Encoding:  wire.KeyEncodingModExp,
			Modulus:   mfrKey.N.Bytes(),
			Exponent:  big.NewInt(int64(mfrKey.E)).Bytes(),
		},
		Rendezvous: splitRendezvous(config.Rendezvous),
		Logger:     eventLogger,
	})
	if err != nil {
		return err
	}

	records := persistence.NewRecordStore(config.Records)

	tlsConfig, err := serverTLSConfig()
	if err != nil {
		return err
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Address:   config.Listen,
		TLSConfig: tlsConfig,
		Logger:    eventLogger,
		OnSession: func(conn *transport.Conn) {
			defer conn.Close()

			record, err := mfr.Serve(ctx, conn)
			if err != nil {
				logger.Warn("session failed", "remote", conn.RemoteAddr(), "err", err)
				return
			}
			if err := records.Add(record); err != nil {
				logger.Error("store record", "serial", record.SerialNumber, "err", err)
				return
			}
			logger.Info("device onboarded", "serial", record.SerialNumber, "model", record.Model)
		},
		OnError: func(err error) {
			logger.Warn("accept failed", "err", err)
		},
	})
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()
	logger.Info("listening", "addr", server.Addr())

	if config.Advertise {
		stopAdvertising, err := advertise(server.Addr(), logger)
		if err != nil {
			logger.Warn("mDNS advertising unavailable", "err", err)
		} else {
			defer stopAdvertising()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// loadOrGenerateKey reads the manufacturer RSA key, generating and
// persisting one on first start.
func loadOrGenerateKey(logger *slog.Logger) (*rsa.PrivateKey, error) {
	path := config.MfrKeyFile
	if path == "" {
		path = "odo-manufacturer.key"
	}

	key, err := cert.ReadKeyFile(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.Info("generating manufacturer key", "path", path)
	key, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	if err := cert.WriteKeyFile(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

// serverTLSConfig loads the configured certificate, or generates a
// self-signed one when no files are configured.
func serverTLSConfig() (*tls.Config, error) {
	tlsCfg := &transport.TLSConfig{}

	if config.CertFile != "" && config.KeyFile != "" {
		certificate, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.Certificate = certificate
	} else {
		host, _, err := net.SplitHostPort(config.Listen)
		if err != nil || host == "" {
			host = "localhost"
		}
		certificate, err := cert.SelfSigned(config.Instance, []string{host}, 10*365*24*time.Hour)
		if err != nil {
			return nil, err
		}
		tlsCfg.Certificate = certificate
	}

	return transport.NewServerTLSConfig(tlsCfg)
}

func advertise(addr net.Addr, logger *slog.Logger) (func(), error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}

	advertiser := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
	err = advertiser.Advertise(&discovery.ServiceInfo{
		InstanceName:    config.Instance,
		Port:            uint16(port),
		ProtocolVersion: wire.ProtocolVersion,
		ServiceName:     config.Instance,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("advertising", "service", discovery.ServiceType, "instance", config.Instance, "port", port)
	return advertiser.Stop, nil
}

func splitRendezvous(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
