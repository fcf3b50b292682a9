package config

import (
	"errors"
	"flag"
	"net"
	"strconv"
	"strings"
	"time"
)

// NetAddress holds structured network address data for host and port.
// It implements the flag.Value interface.
type NetAddress struct {
	Host string
	Port int
}

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-a HTTP lookup endpoint address in format [host]:[port]
//	-d database DSN
//	-engine storage engine ("sqlite" or "postgres")
//	-api-key remote service API key
//	-base-url remote service base URL
//	-request-timeout remote request timeout (e.g., "30s", "1m")
//	-sync-interval delay between update cycles (e.g., "30m")
//	-lists comma-separated threat lists ("TYPE/PLATFORM/ENTRY,...")
//	-c/-config json file path with configs
//	-check-url look up a single URL and exit
//	-onetime run a single update cycle and exit
func ParseFlags() *StructuredConfig {
	var serverAddress NetAddress
	var databaseDSN string
	var storageEngine string
	var apiKey string
	var baseURL string
	var requestTimeout time.Duration
	var syncInterval time.Duration
	var lists string
	var jsonConfigPath string
	var checkURL string
	var onetime bool

	flag.Var(&serverAddress, "a", "Net address host:port")
	flag.StringVar(&databaseDSN, "d", "", "Database DSN")
	flag.StringVar(&storageEngine, "engine", "", "Storage engine: sqlite or postgres")
	flag.StringVar(&apiKey, "api-key", "", "Remote service API key")
	flag.StringVar(&baseURL, "base-url", "", "Remote service base URL")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Delay between update cycles (e.g., 30m)")
	flag.StringVar(&lists, "lists", "", "Comma-separated threat lists (TYPE/PLATFORM/ENTRY)")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	flag.StringVar(&checkURL, "check-url", "", "Look up a single URL and exit")
	flag.BoolVar(&onetime, "onetime", false, "Run a single update cycle and exit")

	flag.Parse()

	var syncLists []string
	if lists != "" {
		syncLists = strings.Split(lists, ",")
	}

	return &StructuredConfig{
		API: API{
			Key:            apiKey,
			BaseURL:        baseURL,
			RequestTimeout: requestTimeout,
		},
		Storage: Storage{
			Engine: storageEngine,
			DSN:    databaseDSN,
		},
		Server: Server{
			HTTPAddress: serverAddress.String(),
		},
		Sync: Sync{
			Interval: syncInterval,
			Lists:    syncLists,
		},
		Mode: Mode{
			CheckURL: checkURL,
			Onetime:  onetime,
		},
		JSONFilePath: jsonConfigPath,
	}
}

// String returns a canonical host:port string for a NetAddress.
// If neither Host nor Port are set, it returns an empty string.
func (a *NetAddress) String() string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}

	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Set parses the input string of form host:port and populates the NetAddress.
// It validates the port range, checks IP correctness unless host is "localhost",
// and returns an error if the format or values are invalid.
func (a *NetAddress) Set(s string) error {
	hostAndPort := strings.Split(s, ":")
	if len(hostAndPort) != 2 {
		return errors.New("need address in a form `host:port`")
	}

	host := hostAndPort[0]
	port, err := strconv.Atoi(hostAndPort[1])
	if err != nil {
		return err
	}

	if port < 1 {
		return errors.New("port number is a positive integer")
	}

	if host != "" && host != "localhost" {
		ip := net.ParseIP(hostAndPort[0])
		if ip == nil {
			return errors.New("incorrect IP-address provided")
		}
	}

	a.Host = host
	a.Port = port
	return nil
}
